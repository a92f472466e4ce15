// Copyright 2026 The KeyWarp Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package keywarp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func onBits(bits ...int) Bits {
	var b Bits
	for _, i := range bits {
		b.Set(i)
	}
	return b
}

func TestTableFirstMatchWins(t *testing.T) {
	tbl := NewTable()
	tbl.Add(CodeH, Rule{On: onBits(VirtualBit(0)), Output: CodeLeft})
	tbl.Add(CodeH, Rule{Output: CodeDown})
	tbl.Freeze()

	state := onBits(VirtualBit(0))
	r := tbl.Find(CodeH, &state)
	require.NotNil(t, r)
	assert.Equal(t, CodeLeft, r.Output)

	var empty Bits
	r = tbl.Find(CodeH, &empty)
	require.NotNil(t, r)
	assert.Equal(t, CodeDown, r.Output)
}

// TestLookupMonotonicity: a strictly more specific rule wins even when
// it was added later.
func TestLookupMonotonicity(t *testing.T) {
	tbl := NewTable()
	tbl.Add(CodeC, Rule{On: onBits(VirtualBit(1)), Output: CodeX})
	tbl.Add(CodeC, Rule{
		On:     onBits(VirtualBit(1), StdBit(ModLShift)),
		Output: CodeZ,
	})
	tbl.Freeze()

	state := onBits(VirtualBit(1), StdBit(ModLShift))
	r := tbl.Find(CodeC, &state)
	require.NotNil(t, r)
	assert.Equal(t, CodeZ, r.Output)

	state = onBits(VirtualBit(1))
	r = tbl.Find(CodeC, &state)
	require.NotNil(t, r)
	assert.Equal(t, CodeX, r.Output)
}

func TestEqualSpecificityKeepsSourceOrder(t *testing.T) {
	tbl := NewTable()
	tbl.Add(CodeA, Rule{On: onBits(VirtualBit(2)), Output: CodeB})
	tbl.Add(CodeA, Rule{On: onBits(VirtualBit(2)), Output: CodeC})
	tbl.Freeze()

	state := onBits(VirtualBit(2))
	r := tbl.Find(CodeA, &state)
	require.NotNil(t, r)
	assert.Equal(t, CodeB, r.Output)
}

func TestRequiredOff(t *testing.T) {
	tbl := NewTable()
	tbl.Add(CodeJ, Rule{Off: onBits(StdBit(ModLCtrl)), Output: CodeK})
	tbl.Freeze()

	var empty Bits
	require.NotNil(t, tbl.Find(CodeJ, &empty))

	state := onBits(StdBit(ModLCtrl))
	assert.Nil(t, tbl.Find(CodeJ, &state))
}

func TestNoBucketMeansPassthrough(t *testing.T) {
	tbl := NewTable()
	tbl.Freeze()
	var empty Bits
	assert.Nil(t, tbl.Find(CodeQ, &empty))
}

func TestAddAfterFreezePanics(t *testing.T) {
	tbl := NewTable()
	tbl.Freeze()
	assert.Panics(t, func() {
		tbl.Add(CodeA, Rule{Output: CodeB})
	})
}

func TestSpecificity(t *testing.T) {
	r := Rule{On: onBits(1, 2), Off: onBits(2, 3)}
	assert.Equal(t, 3, r.Specificity())
}
