// Package identity derives stable, deterministic identifiers for test
// executions: a fingerprint hash per (fully-qualified name, assembly,
// parameters), plus hashes for error message and stack trace text used to
// group failures server-side. Every function here is pure and
// goroutine-safe: no shared state, no I/O.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// TestIdentity is the immutable identity of a test, stable across retried
// attempts and across processes for the same (fqn, assembly, parameters).
type TestIdentity struct {
	Fingerprint        string `json:"fingerprint"`
	FullyQualifiedName string `json:"fullyQualifiedName"`
	Assembly           string `json:"assembly"`
	Namespace          string `json:"namespace,omitempty"`
	ClassName          string `json:"className,omitempty"`
	MethodName         string `json:"methodName,omitempty"`
	DisplayName        string `json:"displayName,omitempty"`
	ParameterHash      string `json:"parameterHash,omitempty"`
	SourceFile         string `json:"sourceFile,omitempty"`
	SourceLine         int    `json:"sourceLine,omitempty"`
}

// Param is a single test parameter value, formatted in a culture-invariant
// way before hashing. Exactly one of the typed fields (or IsNull) is set.
type Param struct {
	String *string
	Int    *int64
	Float  *float64
	Bool   *bool
	Time   *time.Time
	IsNull bool
}

// Options carries the non-identity fields (namespace, class, method,
// source location) that Generate stores on the returned TestIdentity but
// does not fold into the fingerprint.
type Options struct {
	Namespace  string
	ClassName  string
	MethodName string
	SourceFile string
	SourceLine int
}

// Generate computes a TestIdentity for a test. fqn and assembly are
// required; params may be nil or empty when the test takes no parameters.
//
// fingerprint = hex(SHA256(fqn + "|" + assembly + ["|" + parameterHash]))
// parameterHash = hex(SHA256(canonicalJoin(formatParam(p_i)))), only present
// when len(params) > 0.
func Generate(fqn, assembly string, params []Param, displayName string, opts Options) TestIdentity {
	id := TestIdentity{
		FullyQualifiedName: fqn,
		Assembly:           assembly,
		DisplayName:        displayName,
		Namespace:          opts.Namespace,
		ClassName:          opts.ClassName,
		MethodName:         opts.MethodName,
		SourceFile:         opts.SourceFile,
		SourceLine:         opts.SourceLine,
	}

	seed := fqn + "|" + assembly
	if len(params) > 0 {
		id.ParameterHash = hashParams(params)
		seed += "|" + id.ParameterHash
	}
	id.Fingerprint = hashHex(seed)
	return id
}

func hashParams(params []Param) string {
	formatted := make([]string, len(params))
	for i, p := range params {
		formatted[i] = formatParam(p)
	}
	return hashHex(canonicalJoin(formatted))
}

// canonicalJoin joins pre-formatted parameter strings with "|", so
// AddTwo(2,3) hashes over "2|3".
func canonicalJoin(parts []string) string {
	return strings.Join(parts, "|")
}

func formatParam(p Param) string {
	switch {
	case p.IsNull:
		return "null"
	case p.String != nil:
		return *p.String
	case p.Int != nil:
		return strconv.FormatInt(*p.Int, 10)
	case p.Float != nil:
		return strconv.FormatFloat(*p.Float, 'g', -1, 64)
	case p.Bool != nil:
		if *p.Bool {
			return "true"
		}
		return "false"
	case p.Time != nil:
		return p.Time.UTC().Format(time.RFC3339Nano)
	default:
		return "null"
	}
}

// GenerateErrorMessageHash hashes trimmed error text. Empty (after
// trimming) text hashes to "", signalling the caller to omit the field.
func GenerateErrorMessageHash(text string) string {
	return hashOrEmpty(text)
}

// GenerateStackTraceHash hashes trimmed stack trace text under the same
// policy as GenerateErrorMessageHash.
func GenerateStackTraceHash(text string) string {
	return hashOrEmpty(text)
}

func hashOrEmpty(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}
	return hashHex(trimmed)
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
