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

// Package config loads KeyWarp configuration files.
//
// The format is line oriented.  '#' starts a comment.  A file declares
// virtual-modifier triggers, lock defaults, and keymaps with their
// rules:
//
//	mod M00 trigger=CapsLock tap=Esc threshold=200
//	lock L01 on
//
//	keymap Global default
//	  key W = A
//	  key M00-H = Left
//
//	keymap Emacs class="^Emacs$" parent=Global
//	  key X = &Prefix(EmacsCtrlX)
//
//	keymap EmacsCtrlX
//	  key F = &ShellExecute("emacsclient")
//	  key G = &CancelPrefix
//
// A key specification is a '-'-separated list of modifier terms
// followed by the key name.  Modifier terms are specific hardware
// modifiers (LShift, RCtrl, ...), virtual modifiers (M00-MFF), locks
// (L00-LFF), or the generic Shift/Ctrl/Alt/Win, which expand into one
// rule per side.  A leading '~' on a term requires the modifier to be
// off.  Rules compiled from one bucket are ordered most-specific
// first; equally specific rules keep file order.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/keywarp/keywarp"
)

// LoadError reports a configuration problem with its position.
type LoadError struct {
	File string
	Line int
	Msg  string
}

// Error implements error.
func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Msg)
}

// Load parses a configuration from r.  name becomes Config.Name and
// the file label in diagnostics.
func Load(r io.Reader, name string) (*keywarp.Config, error) {
	ld := &loader{
		name: name,
		cfg: &keywarp.Config{
			Name:    name,
			Default: keywarp.NoKeymap,
		},
		keymapIDs: make(map[string]keywarp.KeymapID),
	}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		ld.line++
		if err := ld.parseLine(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, &LoadError{File: name, Msg: err.Error()}
	}
	return ld.finish()
}

// LoadFile parses the configuration file at path.  The configuration
// name is the file's base name without extension.
func LoadFile(path string) (*keywarp.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{File: path, Msg: err.Error()}
	}
	defer f.Close()
	base := filepath.Base(path)
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return Load(f, base)
}

// pendingRule carries a rule whose action may reference a keymap that
// is declared later in the file.
type pendingRule struct {
	keymap keywarp.KeymapID
	input  keywarp.Code
	rule   keywarp.Rule
	ref    string // keymap name referenced by the action, if any
	line   int
}

type loader struct {
	name string
	line int
	cfg  *keywarp.Config

	keymapIDs map[string]keywarp.KeymapID
	parents   map[keywarp.KeymapID]string
	current   keywarp.KeymapID
	haveMap   bool
	rules     []pendingRule
}

func (ld *loader) errf(format string, args ...interface{}) error {
	return &LoadError{File: ld.name, Line: ld.line, Msg: fmt.Sprintf(format, args...)}
}

func (ld *loader) parseLine(raw string) error {
	line := raw
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	fields := splitFields(line)
	if len(fields) == 0 {
		return nil
	}
	switch strings.ToLower(fields[0]) {
	case "mod":
		return ld.parseMod(fields[1:])
	case "lock":
		return ld.parseLock(fields[1:])
	case "keymap":
		return ld.parseKeymap(fields[1:])
	case "key":
		return ld.parseKey(fields[1:])
	default:
		return ld.errf("unknown directive %q", fields[0])
	}
}

// splitFields splits on whitespace but keeps quoted strings intact,
// including any '=' binding them to an option name.
func splitFields(line string) []string {
	var fields []string
	var b strings.Builder
	inQuote := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
			b.WriteRune(r)
		case !inQuote && (r == ' ' || r == '\t'):
			if b.Len() > 0 {
				fields = append(fields, b.String())
				b.Reset()
			}
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() > 0 {
		fields = append(fields, b.String())
	}
	return fields
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// parseMod handles: mod M00 trigger=CapsLock [tap=Esc] [threshold=200]
func (ld *loader) parseMod(fields []string) error {
	if len(fields) < 2 {
		return ld.errf("mod needs a modifier and a trigger")
	}
	modCode, ok := keywarp.CodeByName(fields[0])
	if !ok || !modCode.IsVirtual() {
		return ld.errf("%q is not a virtual modifier (M00-MFF)", fields[0])
	}
	modNum, _ := modCode.VirtualMod()

	reg := keywarp.TriggerReg{Mod: modNum}
	for _, f := range fields[1:] {
		k, v, found := strings.Cut(f, "=")
		if !found {
			return ld.errf("malformed mod option %q", f)
		}
		switch strings.ToLower(k) {
		case "trigger":
			c, ok := keywarp.CodeByName(v)
			if !ok {
				return ld.errf("unknown trigger key %q", v)
			}
			reg.Trigger = c
		case "tap":
			c, ok := keywarp.CodeByName(v)
			if !ok {
				return ld.errf("unknown tap key %q", v)
			}
			reg.TapOutput = c
		case "threshold":
			ms, err := strconv.Atoi(v)
			if err != nil || ms <= 0 {
				return ld.errf("bad threshold %q", v)
			}
			reg.Threshold = time.Duration(ms) * time.Millisecond
		default:
			return ld.errf("unknown mod option %q", k)
		}
	}
	if reg.Trigger == keywarp.CodeNone {
		return ld.errf("mod %s has no trigger key", fields[0])
	}
	ld.cfg.Triggers = append(ld.cfg.Triggers, reg)
	return nil
}

// parseLock handles: lock L01 [on]
func (ld *loader) parseLock(fields []string) error {
	if len(fields) < 1 {
		return ld.errf("lock needs a lock name")
	}
	num, ok := lockByName(fields[0])
	if !ok {
		return ld.errf("%q is not a lock (L00-LFF)", fields[0])
	}
	on := false
	if len(fields) > 1 {
		switch strings.ToLower(fields[1]) {
		case "on":
			on = true
		case "off":
		default:
			return ld.errf("bad lock state %q", fields[1])
		}
	}
	if on {
		ld.cfg.InitialLocks = append(ld.cfg.InitialLocks, num)
	}
	return nil
}

// parseKeymap handles:
// keymap Name [class="re"] [title="re"] [parent=Name] [default]
func (ld *loader) parseKeymap(fields []string) error {
	if len(fields) < 1 {
		return ld.errf("keymap needs a name")
	}
	name := fields[0]
	if _, dup := ld.keymapIDs[name]; dup {
		return ld.errf("duplicate keymap %q", name)
	}
	km := &keywarp.Keymap{
		ID:     keywarp.KeymapID(len(ld.cfg.Keymaps)),
		Name:   name,
		Parent: keywarp.NoKeymap,
		Table:  keywarp.NewTable(),
	}
	isDefault := false
	for _, f := range fields[1:] {
		if strings.EqualFold(f, "default") {
			isDefault = true
			continue
		}
		k, v, found := strings.Cut(f, "=")
		if !found {
			return ld.errf("malformed keymap option %q", f)
		}
		switch strings.ToLower(k) {
		case "class":
			re, err := regexp.Compile(unquote(v))
			if err != nil {
				return ld.errf("bad class regexp: %v", err)
			}
			km.ClassRe = re
		case "title":
			re, err := regexp.Compile(unquote(v))
			if err != nil {
				return ld.errf("bad title regexp: %v", err)
			}
			km.TitleRe = re
		case "parent":
			if ld.parents == nil {
				ld.parents = make(map[keywarp.KeymapID]string)
			}
			ld.parents[km.ID] = v
		default:
			return ld.errf("unknown keymap option %q", k)
		}
	}
	ld.cfg.Keymaps = append(ld.cfg.Keymaps, km)
	ld.keymapIDs[name] = km.ID
	ld.current = km.ID
	ld.haveMap = true
	if isDefault {
		if ld.cfg.Default != keywarp.NoKeymap {
			return ld.errf("second default keymap %q", name)
		}
		ld.cfg.Default = km.ID
	}
	return nil
}

// parseKey handles: key [<mods>-]<Key> = <Key> | &Action[(args)]
func (ld *loader) parseKey(fields []string) error {
	if !ld.haveMap {
		return ld.errf("key outside of a keymap")
	}
	spec := strings.Join(fields, " ")
	lhs, rhs, found := strings.Cut(spec, "=")
	if !found {
		return ld.errf("key needs '='")
	}
	lhs = strings.TrimSpace(lhs)
	rhs = strings.TrimSpace(rhs)
	if lhs == "" || rhs == "" {
		return ld.errf("empty key binding")
	}

	input, masks, err := ld.parseKeySpec(lhs)
	if err != nil {
		return err
	}

	var output keywarp.Code
	var action *keywarp.Action
	var ref string
	if strings.HasPrefix(rhs, "&") {
		action, ref, err = ld.parseAction(rhs)
		if err != nil {
			return err
		}
	} else {
		c, ok := keywarp.CodeByName(rhs)
		if !ok {
			return ld.errf("unknown output key %q", rhs)
		}
		output = c
	}

	for _, m := range masks {
		ld.rules = append(ld.rules, pendingRule{
			keymap: ld.current,
			input:  input,
			rule: keywarp.Rule{
				On:     m.on,
				Off:    m.off,
				Output: output,
				Action: action,
			},
			ref:  ref,
			line: ld.line,
		})
	}
	return nil
}

type mask struct {
	on  keywarp.Bits
	off keywarp.Bits
}

// parseKeySpec compiles "M00-~LShift-H" into the input code and the
// rule masks.  Generic Shift/Ctrl/Alt/Win expand into one mask per
// side, so the result is a small cartesian product.
func (ld *loader) parseKeySpec(spec string) (keywarp.Code, []mask, error) {
	terms := strings.Split(spec, "-")
	keyName := terms[len(terms)-1]
	input, ok := keywarp.CodeByName(keyName)
	if !ok {
		return 0, nil, ld.errf("unknown key %q", keyName)
	}

	masks := []mask{{}}
	for _, term := range terms[:len(terms)-1] {
		neg := false
		if strings.HasPrefix(term, "~") {
			neg = true
			term = term[1:]
		}
		bits, err := ld.modifierBits(term)
		if err != nil {
			return 0, nil, err
		}
		next := make([]mask, 0, len(masks)*len(bits))
		for _, m := range masks {
			for _, bit := range bits {
				nm := m
				if neg {
					nm.off.Set(bit)
				} else {
					nm.on.Set(bit)
				}
				next = append(next, nm)
			}
		}
		masks = next
	}
	return input, masks, nil
}

// modifierBits resolves a modifier term to one or more bitset indexes.
func (ld *loader) modifierBits(term string) ([]int, error) {
	switch strings.ToLower(term) {
	case "shift":
		return []int{keywarp.StdBit(keywarp.ModLShift), keywarp.StdBit(keywarp.ModRShift)}, nil
	case "ctrl", "control":
		return []int{keywarp.StdBit(keywarp.ModLCtrl), keywarp.StdBit(keywarp.ModRCtrl)}, nil
	case "alt":
		return []int{keywarp.StdBit(keywarp.ModLAlt), keywarp.StdBit(keywarp.ModRAlt)}, nil
	case "win", "meta":
		return []int{keywarp.StdBit(keywarp.ModLWin), keywarp.StdBit(keywarp.ModRWin)}, nil
	}
	if std, ok := stdModByName(term); ok {
		return []int{keywarp.StdBit(std)}, nil
	}
	if num, ok := lockByName(term); ok {
		return []int{keywarp.LockBit(num)}, nil
	}
	if c, ok := keywarp.CodeByName(term); ok && c.IsVirtual() {
		num, _ := c.VirtualMod()
		return []int{keywarp.VirtualBit(num)}, nil
	}
	return nil, ld.errf("unknown modifier %q", term)
}

func stdModByName(name string) (keywarp.StdMod, bool) {
	switch strings.ToLower(name) {
	case "lshift":
		return keywarp.ModLShift, true
	case "rshift":
		return keywarp.ModRShift, true
	case "lctrl":
		return keywarp.ModLCtrl, true
	case "rctrl":
		return keywarp.ModRCtrl, true
	case "lalt":
		return keywarp.ModLAlt, true
	case "ralt":
		return keywarp.ModRAlt, true
	case "lwin":
		return keywarp.ModLWin, true
	case "rwin":
		return keywarp.ModRWin, true
	case "capslock":
		return keywarp.ModCapsLock, true
	case "numlock":
		return keywarp.ModNumLock, true
	case "scrolllock":
		return keywarp.ModScrollLock, true
	}
	return 0, false
}

func lockByName(name string) (uint8, bool) {
	if len(name) != 3 || (name[0] != 'L' && name[0] != 'l') {
		return 0, false
	}
	v, err := strconv.ParseUint(name[1:], 16, 8)
	if err != nil {
		return 0, false
	}
	return uint8(v), true
}

// actionSpec describes one command the loader knows.  argc is the
// exact argument count; argc < 0 means "one or more".
type actionSpec struct {
	kind keywarp.ActionKind
	argc int
}

var actionSpecs = map[string]actionSpec{
	"prefix":           {keywarp.ActionPrefix, 1},
	"keymapparent":     {keywarp.ActionKeymapParent, 0},
	"keymapprevprefix": {keywarp.ActionPrevPrefix, 0},
	"cancelprefix":     {keywarp.ActionCancelPrefix, 0},
	"otherwindowclass": {keywarp.ActionOtherWindowClass, 0},
	"togglelock":       {keywarp.ActionToggleLock, 1},
	"setvariable":      {keywarp.ActionSetVariable, 1},
	"addvariable":      {keywarp.ActionAddVariable, 1},
	"keyseq":           {keywarp.ActionKeySeq, -1},
	"repeat":           {keywarp.ActionRepeat, -1},
	"helpmessage":      {keywarp.ActionHelp, 2},
	"notify":           {keywarp.ActionNotify, 1},
	"describebindings": {keywarp.ActionDescribeBindings, 0},
	"shellexecute":     {keywarp.ActionShell, 1},
	"plugin":           {keywarp.ActionPlugin, 1},
}

// parseAction compiles "&Name(args)".  A command that takes arguments
// must use parentheses; accepting the bare form for such commands is a
// load diagnostic, not a default.
func (ld *loader) parseAction(s string) (*keywarp.Action, string, error) {
	body := s[1:]
	name := body
	var args []string
	hasParens := false
	if i := strings.IndexByte(body, '('); i >= 0 {
		if !strings.HasSuffix(body, ")") {
			return nil, "", ld.errf("unterminated action arguments in %q", s)
		}
		hasParens = true
		name = body[:i]
		inner := strings.TrimSpace(body[i+1 : len(body)-1])
		if inner != "" {
			for _, a := range strings.Split(inner, ",") {
				args = append(args, strings.TrimSpace(a))
			}
		}
	}
	spec, ok := actionSpecs[strings.ToLower(name)]
	if !ok {
		return nil, "", ld.errf("unknown action &%s", name)
	}
	if spec.argc == 0 && len(args) > 0 {
		return nil, "", ld.errf("&%s takes no arguments", name)
	}
	if spec.argc != 0 && !hasParens {
		return nil, "", ld.errf("&%s requires parenthesized arguments", name)
	}
	if spec.argc > 0 && len(args) != spec.argc {
		return nil, "", ld.errf("&%s takes %d argument(s), got %d", name, spec.argc, len(args))
	}
	if spec.argc < 0 && len(args) == 0 {
		return nil, "", ld.errf("&%s needs at least one argument", name)
	}

	a := &keywarp.Action{Kind: spec.kind}
	var ref string
	switch spec.kind {
	case keywarp.ActionPrefix:
		ref = unquote(args[0])
	case keywarp.ActionToggleLock:
		num, ok := lockByName(args[0])
		if !ok {
			return nil, "", ld.errf("&%s: %q is not a lock", name, args[0])
		}
		a.Lock = num
	case keywarp.ActionSetVariable, keywarp.ActionAddVariable:
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, "", ld.errf("&%s: bad number %q", name, args[0])
		}
		a.N = n
	case keywarp.ActionKeySeq, keywarp.ActionRepeat:
		keys, err := ld.parseKeySeq(args)
		if err != nil {
			return nil, "", err
		}
		a.Keys = keys
	case keywarp.ActionHelp:
		a.Title = unquote(args[0])
		a.Text = unquote(args[1])
	case keywarp.ActionNotify, keywarp.ActionShell, keywarp.ActionPlugin:
		a.Text = unquote(args[0])
	}
	return a, ref, nil
}

// parseKeySeq expands key names into press+release stroke pairs.
func (ld *loader) parseKeySeq(args []string) ([]keywarp.KeyStroke, error) {
	var keys []keywarp.KeyStroke
	for _, arg := range args {
		for _, nm := range strings.Fields(unquote(arg)) {
			c, ok := keywarp.CodeByName(nm)
			if !ok {
				return nil, ld.errf("unknown key %q in sequence", nm)
			}
			keys = append(keys,
				keywarp.KeyStroke{Code: c, Type: keywarp.Press},
				keywarp.KeyStroke{Code: c, Type: keywarp.Release})
		}
	}
	return keys, nil
}

// finish resolves deferred references, freezes the tables, and
// validates the result.
func (ld *loader) finish() (*keywarp.Config, error) {
	if len(ld.cfg.Keymaps) == 0 {
		return nil, &LoadError{File: ld.name, Msg: "no keymaps defined"}
	}
	if ld.cfg.Default == keywarp.NoKeymap {
		ld.cfg.Default = 0
	}
	for id, parentName := range ld.parents {
		pid, ok := ld.keymapIDs[parentName]
		if !ok {
			return nil, &LoadError{File: ld.name,
				Msg: fmt.Sprintf("keymap %q has unknown parent %q",
					ld.cfg.Keymaps[id].Name, parentName)}
		}
		ld.cfg.Keymaps[id].Parent = pid
	}
	for _, pr := range ld.rules {
		if pr.ref != "" {
			id, ok := ld.keymapIDs[pr.ref]
			if !ok {
				return nil, &LoadError{File: ld.name, Line: pr.line,
					Msg: fmt.Sprintf("action references unknown keymap %q", pr.ref)}
			}
			pr.rule.Action.Keymap = id
		}
		ld.cfg.Keymaps[pr.keymap].Table.Add(pr.input, pr.rule)
	}
	for _, km := range ld.cfg.Keymaps {
		km.Table.Freeze()
	}
	if err := ld.cfg.Validate(); err != nil {
		return nil, &LoadError{File: ld.name, Msg: err.Error()}
	}
	return ld.cfg, nil
}
