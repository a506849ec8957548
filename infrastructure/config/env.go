package config

import (
	"fmt"
	"os"
	"strings"

	domainconfig "github.com/wilson323/llmchat-sub005/domain/config"
)

// Environment references in raw config text, resolved before decoding:
//
//	${VAR}           the variable's value, empty when unset
//	${VAR:-fallback} the value, or fallback when unset or empty
//	${VAR:?note}     the value; unset or empty is an error
//	$VAR             shorthand for ${VAR}
//
// Text that only looks like a reference ("price: $100", "${not valid")
// passes through untouched. In strict mode a plain reference to an
// unset variable is an error instead of expanding to the empty string.
func expandVars(input string, strict bool) (string, error) {
	var out strings.Builder
	var missing []string

	for i := 0; i < len(input); {
		if input[i] != '$' {
			out.WriteByte(input[i])
			i++
			continue
		}

		if i+1 < len(input) && input[i+1] == '{' {
			end := strings.IndexByte(input[i:], '}')
			if end < 0 {
				// Unterminated brace, keep the rest as-is.
				out.WriteString(input[i:])
				break
			}
			ref := input[i+2 : i+end]
			if value, ok := resolveRef(ref, strict, &missing); ok {
				out.WriteString(value)
			} else {
				out.WriteString(input[i : i+end+1])
			}
			i += end + 1
			continue
		}

		// Shorthand form: consume the longest valid name.
		j := i + 1
		if j < len(input) && isNameStart(input[j]) {
			for j < len(input) && isNameByte(input[j]) {
				j++
			}
			name := input[i+1 : j]
			value, exists := os.LookupEnv(name)
			if !exists && strict {
				missing = append(missing, name)
			}
			out.WriteString(value)
			i = j
			continue
		}

		out.WriteByte('$')
		i++
	}

	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", domainconfig.ErrMissingEnvVar, strings.Join(missing, ", "))
	}
	return out.String(), nil
}

// resolveRef resolves the inside of a ${...} reference. A false return
// means the text is not a reference and must be kept verbatim.
func resolveRef(ref string, strict bool, missing *[]string) (string, bool) {
	name, mod, hasMod := strings.Cut(ref, ":")
	if !validName(name) {
		return "", false
	}

	value, exists := os.LookupEnv(name)

	if !hasMod {
		if !exists && strict {
			*missing = append(*missing, name)
		}
		return value, true
	}

	switch {
	case strings.HasPrefix(mod, "-"):
		if !exists || value == "" {
			return mod[1:], true
		}
		return value, true
	case strings.HasPrefix(mod, "?"):
		if !exists || value == "" {
			*missing = append(*missing, fmt.Sprintf("%s: %s", name, mod[1:]))
			return "", false
		}
		return value, true
	default:
		return "", false
	}
}

func validName(name string) bool {
	if name == "" || !isNameStart(name[0]) {
		return false
	}
	for i := 1; i < len(name); i++ {
		if !isNameByte(name[i]) {
			return false
		}
	}
	return true
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameByte(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}

// ExpandEnv expands environment references, treating unset variables
// as empty.
func ExpandEnv(input string) string {
	result, _ := expandVars(input, false)
	return result
}

// ExpandEnvStrict expands environment references and fails on any
// reference to an unset variable.
func ExpandEnvStrict(input string) (string, error) {
	return expandVars(input, true)
}
