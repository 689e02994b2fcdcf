package compiler

import "fmt"

// lexerBackend 逐字符扫描源码，跳过注释与正则字面量，精确抽取
// import/export/require 的依赖说明符；字符串未终结等词法错误会携带
// 行号作为诊断信息返回。
type lexerBackend struct{}

func newLexerBackend() (Backend, error) {
	return &lexerBackend{}, nil
}

func (b *lexerBackend) Name() string { return "lexer" }

func (b *lexerBackend) Translate(path string, source []byte) (*Result, error) {
	tokens, err := tokenize(source)
	if err != nil {
		return nil, &CompileError{Path: path, Backend: b.Name(), Diagnostic: err.Error()}
	}

	deps := collectDependencies(tokens)
	return &Result{
		Code:         wrapRegister(deps, source),
		Dependencies: deps,
	}, nil
}

type tokenKind int

const (
	tokenIdent tokenKind = iota
	tokenString
	tokenPunct
)

type token struct {
	kind tokenKind
	text string // identifier text, string value, or punct rune
}

// tokenize 产出 identifier/string/punct 三类 token；注释与正则字面量被
// 跳过，数字等其他字符按单字符 punct 处理，足够支撑依赖抽取。
func tokenize(source []byte) ([]token, error) {
	var tokens []token
	line := 1
	i := 0
	n := len(source)

	lastSignificant := func() *token {
		if len(tokens) == 0 {
			return nil
		}
		return &tokens[len(tokens)-1]
	}

	for i < n {
		c := source[i]

		switch {
		case c == '\n':
			line++
			i++
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '/' && i+1 < n && source[i+1] == '/':
			for i < n && source[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < n && source[i+1] == '*':
			closed := false
			i += 2
			for i+1 < n {
				if source[i] == '\n' {
					line++
				}
				if source[i] == '*' && source[i+1] == '/' {
					i += 2
					closed = true
					break
				}
				i++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated block comment (line %d)", line)
			}
		case c == '\'' || c == '"':
			value, next, err := scanString(source, i, line)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokenString, text: value})
			i = next
		case c == '`':
			value, next, newLine, err := scanTemplate(source, i, line)
			if err != nil {
				return nil, err
			}
			line = newLine
			tokens = append(tokens, token{kind: tokenString, text: value})
			i = next
		case c == '/' && regexAllowed(lastSignificant()):
			next, newLine, err := scanRegex(source, i, line)
			if err != nil {
				return nil, err
			}
			line = newLine
			tokens = append(tokens, token{kind: tokenPunct, text: "/regex/"})
			i = next
		case isIdentStart(c):
			start := i
			for i < n && isIdentPart(source[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokenIdent, text: string(source[start:i])})
		default:
			tokens = append(tokens, token{kind: tokenPunct, text: string(c)})
			i++
		}
	}

	return tokens, nil
}

// scanString 扫描单行字符串字面量，遇到换行或 EOF 仍未闭合即报错。
func scanString(source []byte, start, line int) (string, int, error) {
	quote := source[start]
	i := start + 1
	var value []byte
	for i < len(source) {
		c := source[i]
		switch {
		case c == '\\' && i+1 < len(source):
			value = append(value, source[i+1])
			i += 2
		case c == quote:
			return string(value), i + 1, nil
		case c == '\n':
			return "", 0, fmt.Errorf("unterminated string literal (line %d)", line)
		default:
			value = append(value, c)
			i++
		}
	}
	return "", 0, fmt.Errorf("unterminated string literal (line %d)", line)
}

// scanTemplate 扫描模板字面量，允许跨行，EOF 未闭合时报错。
func scanTemplate(source []byte, start, line int) (string, int, int, error) {
	i := start + 1
	var value []byte
	for i < len(source) {
		c := source[i]
		switch {
		case c == '\\' && i+1 < len(source):
			value = append(value, source[i+1])
			i += 2
		case c == '`':
			return string(value), i + 1, line, nil
		default:
			if c == '\n' {
				line++
			}
			value = append(value, c)
			i++
		}
	}
	return "", 0, line, fmt.Errorf("unterminated template literal (line %d)", line)
}

// scanRegex 跳过正则字面量，字符类内的 / 不会提前终结。
func scanRegex(source []byte, start, line int) (int, int, error) {
	i := start + 1
	inClass := false
	for i < len(source) {
		c := source[i]
		switch {
		case c == '\\' && i+1 < len(source):
			i += 2
		case c == '[':
			inClass = true
			i++
		case c == ']':
			inClass = false
			i++
		case c == '/' && !inClass:
			i++
			for i < len(source) && isIdentPart(source[i]) {
				i++
			}
			return i, line, nil
		case c == '\n':
			return 0, line, fmt.Errorf("unterminated regular expression (line %d)", line)
		default:
			i++
		}
	}
	return 0, line, fmt.Errorf("unterminated regular expression (line %d)", line)
}

// regexAllowed 依据前一个 token 判断 `/` 是否可能开启正则字面量。
func regexAllowed(prev *token) bool {
	if prev == nil {
		return true
	}
	switch prev.kind {
	case tokenIdent:
		switch prev.text {
		case "return", "typeof", "instanceof", "in", "of", "new", "delete", "void", "case", "do", "else":
			return true
		}
		return false
	case tokenString:
		return false
	default:
		return prev.text != ")" && prev.text != "]" && prev.text != "/regex/"
	}
}

// collectDependencies 在 token 流上识别依赖声明，保持源码顺序且不去重。
func collectDependencies(tokens []token) []string {
	deps := []string{}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok.kind != tokenIdent {
			continue
		}

		switch tok.text {
		case "require":
			if spec, ok := matchCall(tokens, i); ok {
				deps = append(deps, spec)
			}
		case "import":
			if i+1 < len(tokens) && tokens[i+1].kind == tokenString {
				// import "spec";
				deps = append(deps, tokens[i+1].text)
				i++
				continue
			}
			if spec, ok := matchCall(tokens, i); ok {
				// 动态 import("spec")
				deps = append(deps, spec)
				continue
			}
			if spec, ok := matchFromClause(tokens, i); ok {
				deps = append(deps, spec)
			}
		case "export":
			if spec, ok := matchFromClause(tokens, i); ok {
				deps = append(deps, spec)
			}
		}
	}

	return deps
}

// matchCall 匹配 ident ( "spec" ) 形式。
func matchCall(tokens []token, i int) (string, bool) {
	if i+3 < len(tokens) &&
		tokens[i+1].kind == tokenPunct && tokens[i+1].text == "(" &&
		tokens[i+2].kind == tokenString &&
		tokens[i+3].kind == tokenPunct && tokens[i+3].text == ")" {
		return tokens[i+2].text, true
	}
	return "", false
}

// matchFromClause 自当前语句起查找 from "spec"，遇到分号或下一语句关键字停止。
func matchFromClause(tokens []token, i int) (string, bool) {
	for j := i + 1; j < len(tokens) && j < i+64; j++ {
		tok := tokens[j]
		if tok.kind == tokenPunct && tok.text == ";" {
			return "", false
		}
		if tok.kind == tokenIdent {
			switch tok.text {
			case "from":
				if j+1 < len(tokens) && tokens[j+1].kind == tokenString {
					return tokens[j+1].text, true
				}
				return "", false
			case "import", "export", "var", "let", "const", "function", "class":
				return "", false
			}
		}
	}
	return "", false
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
