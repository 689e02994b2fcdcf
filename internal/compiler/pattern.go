package compiler

import (
	"regexp"
	"sort"
)

// patternBackend 基于正则表达式抽取依赖，容忍词法噪音但不产出诊断，
// 作为 lexer 后端不可用时的降级实现。
type patternBackend struct {
	requireRe *regexp.Regexp
	importRe  *regexp.Regexp
	exportRe  *regexp.Regexp
}

const specifierGroup = `("(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*')`

func newPatternBackend() (Backend, error) {
	requireRe, err := regexp.Compile(`require\s*\(\s*` + specifierGroup + `\s*\)`)
	if err != nil {
		return nil, err
	}
	importRe, err := regexp.Compile(`(?m)^[ \t]*import\s+(?:[^'";]*?\bfrom\s+)?` + specifierGroup)
	if err != nil {
		return nil, err
	}
	exportRe, err := regexp.Compile(`(?m)^[ \t]*export\s+[^'";]*?\bfrom\s+` + specifierGroup)
	if err != nil {
		return nil, err
	}
	return &patternBackend{
		requireRe: requireRe,
		importRe:  importRe,
		exportRe:  exportRe,
	}, nil
}

func (b *patternBackend) Name() string { return "pattern" }

func (b *patternBackend) Translate(path string, source []byte) (*Result, error) {
	type match struct {
		offset int
		spec   string
	}

	var matches []match
	collect := func(re *regexp.Regexp) {
		for _, loc := range re.FindAllSubmatchIndex(source, -1) {
			raw := source[loc[2]:loc[3]]
			matches = append(matches, match{
				offset: loc[2],
				spec:   unquoteSpecifier(raw),
			})
		}
	}
	collect(b.requireRe)
	collect(b.importRe)
	collect(b.exportRe)

	sort.Slice(matches, func(i, j int) bool { return matches[i].offset < matches[j].offset })

	deps := make([]string, 0, len(matches))
	for _, m := range matches {
		deps = append(deps, m.spec)
	}

	return &Result{
		Code:         wrapRegister(deps, source),
		Dependencies: deps,
	}, nil
}

// unquoteSpecifier 去掉首尾引号并还原反斜杠转义。
func unquoteSpecifier(raw []byte) string {
	if len(raw) < 2 {
		return string(raw)
	}
	body := raw[1 : len(raw)-1]
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		if body[i] == '\\' && i+1 < len(body) {
			i++
		}
		out = append(out, body[i])
	}
	return string(out)
}
