// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"unicode"
)

// ErrFilterSyntax is returned by [ParseFilter] for an invalid expression.
type ErrFilterSyntax struct {
	// Pos is the byte offset of the offending token.
	Pos    int
	Reason string
}

func (e ErrFilterSyntax) Error() string {
	return fmt.Sprintf("filter syntax error at %d: %s", e.Pos, e.Reason)
}

// Filter is a compiled filter expression. The nil filter matches every packet.
type Filter struct {
	expr string
	root node
}

// ParseFilter compiles a filter expression.
//
// Grammar:
//
//	expr    = or
//	or      = and { ("or" | "||") and }
//	and     = unary { ("and" | "&&") unary }
//	unary   = ("not" | "!") unary | "(" expr ")" | term
//	term    = proto | ("proto" | "protocol") "=" proto
//	        | ("src" | "dst" | "host") ["="] addr
//	        | ("port" | "sport" | "dport") op number ["-" number]
//	op      = "=" | "!=" | "<" | "<=" | ">" | ">="
//
// Keywords are case-insensitive. An empty expression matches everything.
func ParseFilter(expr string) (*Filter, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	toks, err := lex(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, ErrFilterSyntax{Pos: t.pos, Reason: fmt.Sprintf("unexpected %q", t.text)}
	}
	return &Filter{expr: strings.TrimSpace(expr), root: root}, nil
}

// Match reports whether the packet satisfies the filter.
func (f *Filter) Match(p *Packet) bool {
	if f == nil || f.root == nil {
		return true
	}
	return f.root.match(p)
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

type node interface {
	match(p *Packet) bool
}

type (
	andNode   struct{ l, r node }
	orNode    struct{ l, r node }
	notNode   struct{ n node }
	protoNode struct{ kinds []LayerKind }
	addrNode  struct {
		field  string
		prefix netip.Prefix
	}
	portNode struct {
		field  string
		op     string
		lo, hi uint16
	}
)

func (n andNode) match(p *Packet) bool { return n.l.match(p) && n.r.match(p) }
func (n orNode) match(p *Packet) bool  { return n.l.match(p) || n.r.match(p) }
func (n notNode) match(p *Packet) bool { return !n.n.match(p) }

func (n protoNode) match(p *Packet) bool {
	for _, k := range n.kinds {
		if p.Has(k) {
			return true
		}
	}
	return false
}

func (n addrNode) match(p *Packet) bool {
	switch n.field {
	case "src":
		return p.Src().IsValid() && n.prefix.Contains(p.Src())
	case "dst":
		return p.Dst().IsValid() && n.prefix.Contains(p.Dst())
	default:
		return (p.Src().IsValid() && n.prefix.Contains(p.Src())) ||
			(p.Dst().IsValid() && n.prefix.Contains(p.Dst()))
	}
}

func (n portNode) match(p *Packet) bool {
	src, dst, ok := p.Ports()
	if !ok {
		return false
	}
	switch n.field {
	case "sport":
		return n.compare(src)
	case "dport":
		return n.compare(dst)
	default:
		if n.op == "!=" {
			return n.compare(src) && n.compare(dst)
		}
		return n.compare(src) || n.compare(dst)
	}
}

func (n portNode) compare(v uint16) bool {
	switch n.op {
	case "=":
		return v >= n.lo && v <= n.hi
	case "!=":
		return v < n.lo || v > n.hi
	case "<":
		return v < n.lo
	case "<=":
		return v <= n.lo
	case ">":
		return v > n.lo
	case ">=":
		return v >= n.lo
	}
	return false
}

// protocols maps filter protocol names to the layer kinds they select.
var protocols = map[string][]LayerKind{
	"ether":    {KindEthernet},
	"ethernet": {KindEthernet},
	"arp":      {KindARP},
	"ip":       {KindIPv4, KindIPv6},
	"ipv4":     {KindIPv4},
	"ip4":      {KindIPv4},
	"ipv6":     {KindIPv6},
	"ip6":      {KindIPv6},
	"tcp":      {KindTCP},
	"udp":      {KindUDP},
	"icmp":     {KindICMPv4, KindICMPv6},
	"icmp4":    {KindICMPv4},
	"icmpv6":   {KindICMPv6},
	"icmp6":    {KindICMPv6},
}

type tokKind uint8

const (
	tokEOF tokKind = iota
	tokWord
	tokOp
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokNot
)

type token struct {
	kind tokKind
	text string
	pos  int
}

func lex(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case strings.HasPrefix(s[i:], "&&"):
			toks = append(toks, token{tokAnd, "&&", i})
			i += 2
		case strings.HasPrefix(s[i:], "||"):
			toks = append(toks, token{tokOr, "||", i})
			i += 2
		case strings.HasPrefix(s[i:], "!="), strings.HasPrefix(s[i:], "<="), strings.HasPrefix(s[i:], ">="),
			strings.HasPrefix(s[i:], "=="):
			op := s[i : i+2]
			if op == "==" {
				op = "="
			}
			toks = append(toks, token{tokOp, op, i})
			i += 2
		case c == '=' || c == '<' || c == '>':
			toks = append(toks, token{tokOp, string(c), i})
			i++
		case c == '!':
			toks = append(toks, token{tokNot, "!", i})
			i++
		case isWordByte(c):
			start := i
			for i < len(s) && isWordByte(s[i]) {
				i++
			}
			word := s[start:i]
			switch strings.ToLower(word) {
			case "and":
				toks = append(toks, token{tokAnd, word, start})
			case "or":
				toks = append(toks, token{tokOr, word, start})
			case "not":
				toks = append(toks, token{tokNot, word, start})
			default:
				toks = append(toks, token{tokWord, word, start})
			}
		default:
			return nil, ErrFilterSyntax{Pos: i, Reason: fmt.Sprintf("unexpected character %q", c)}
		}
	}
	return append(toks, token{tokEOF, "", len(s)}), nil
}

// isWordByte accepts the characters of names, numbers, addresses, prefixes and port ranges.
func isWordByte(c byte) bool {
	r := rune(c)
	return unicode.IsLetter(r) || unicode.IsDigit(r) || c == '.' || c == ':' || c == '/' || c == '-' || c == '_'
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left, right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andNode{left, right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNot:
		n, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{n}, nil
	case tokLParen:
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if c := p.next(); c.kind != tokRParen {
			return nil, ErrFilterSyntax{Pos: c.pos, Reason: "missing closing parenthesis"}
		}
		return n, nil
	case tokWord:
		return p.parseTerm(t)
	case tokEOF:
		return nil, ErrFilterSyntax{Pos: t.pos, Reason: "unexpected end of expression"}
	default:
		return nil, ErrFilterSyntax{Pos: t.pos, Reason: fmt.Sprintf("unexpected %q", t.text)}
	}
}

func (p *parser) parseTerm(t token) (node, error) {
	key := strings.ToLower(t.text)
	if kinds, ok := protocols[key]; ok {
		return protoNode{kinds: kinds}, nil
	}
	switch key {
	case "proto", "protocol":
		if op := p.next(); op.kind != tokOp || op.text != "=" {
			return nil, ErrFilterSyntax{Pos: op.pos, Reason: "expected '=' after " + key}
		}
		v := p.next()
		kinds, ok := protocols[strings.ToLower(v.text)]
		if v.kind != tokWord || !ok {
			return nil, ErrFilterSyntax{Pos: v.pos, Reason: fmt.Sprintf("unknown protocol %q", v.text)}
		}
		return protoNode{kinds: kinds}, nil
	case "src", "dst", "host":
		if op := p.peek(); op.kind == tokOp {
			if op.text != "=" {
				return nil, ErrFilterSyntax{Pos: op.pos, Reason: "address fields only support '='"}
			}
			p.next()
		}
		v := p.next()
		if v.kind != tokWord {
			return nil, ErrFilterSyntax{Pos: v.pos, Reason: "expected address"}
		}
		prefix, err := parsePrefix(v.text)
		if err != nil {
			return nil, ErrFilterSyntax{Pos: v.pos, Reason: err.Error()}
		}
		return addrNode{field: key, prefix: prefix}, nil
	case "port", "sport", "dport":
		op := p.next()
		if op.kind != tokOp {
			return nil, ErrFilterSyntax{Pos: op.pos, Reason: "expected comparison after " + key}
		}
		v := p.next()
		if v.kind != tokWord {
			return nil, ErrFilterSyntax{Pos: v.pos, Reason: "expected port"}
		}
		lo, hi, err := parsePortRange(v.text)
		if err != nil {
			return nil, ErrFilterSyntax{Pos: v.pos, Reason: err.Error()}
		}
		if lo != hi && op.text != "=" && op.text != "!=" {
			return nil, ErrFilterSyntax{Pos: op.pos, Reason: "port ranges only support '=' and '!='"}
		}
		return portNode{field: key, op: op.text, lo: lo, hi: hi}, nil
	}
	return nil, ErrFilterSyntax{Pos: t.pos, Reason: fmt.Sprintf("unknown field %q", t.text)}
}

func parsePrefix(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		prefix, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("invalid prefix %q", s)
		}
		return prefix.Masked(), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid address %q", s)
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func parsePortRange(s string) (lo, hi uint16, err error) {
	first, last, isRange := strings.Cut(s, "-")
	a, err := strconv.ParseUint(first, 10, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid port %q", first)
	}
	if !isRange {
		return uint16(a), uint16(a), nil
	}
	b, err := strconv.ParseUint(last, 10, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid port %q", last)
	}
	if b < a {
		return 0, 0, fmt.Errorf("empty port range %q", s)
	}
	return uint16(a), uint16(b), nil
}
