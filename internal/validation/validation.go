// Package validation checks decoded JSON request bodies field by field and
// collects messages keyed by field name.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Errors maps a field name to its messages.
type Errors map[string][]string

// Input is a decoded JSON object.
type Input map[string]any

// ErrMalformedBody is returned by Decode for bodies that are not a JSON object.
var ErrMalformedBody = errors.New("request body must be a JSON object")

// Decode reads a JSON object. An empty body decodes to an empty Input.
func Decode(r io.Reader) (Input, error) {
	body, err := io.ReadAll(io.LimitReader(r, 1<<20))
	if err != nil {
		return nil, err
	}
	in := Input{}
	if len(bytes.TrimSpace(body)) == 0 {
		return in, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return in, nil
}

type ruleKind int

const (
	ruleRequired ruleKind = iota
	ruleMin
	ruleMax
	ruleIn
	ruleEmail
	ruleURL
	ruleConfirmed
)

// Rule constrains a field. Build rules with the helpers below.
type Rule struct {
	kind ruleKind
	n    float64
	set  []string
}

var (
	Required  = Rule{kind: ruleRequired}
	Email     = Rule{kind: ruleEmail}
	URL       = Rule{kind: ruleURL}
	Confirmed = Rule{kind: ruleConfirmed}
)

// Min is a lower bound: characters for strings, value for numbers.
func Min(n float64) Rule { return Rule{kind: ruleMin, n: n} }

// Max is an upper bound: characters for strings, value for numbers.
func Max(n float64) Rule { return Rule{kind: ruleMax, n: n} }

// In restricts a string to an enumerated set.
func In(values ...string) Rule { return Rule{kind: ruleIn, set: values} }

// Validator accumulates errors over one Input.
type Validator struct {
	in   Input
	errs Errors
}

func New(in Input) *Validator {
	if in == nil {
		in = Input{}
	}
	return &Validator{in: in, errs: Errors{}}
}

func (v *Validator) Fails() bool    { return len(v.errs) > 0 }
func (v *Validator) Errors() Errors { return v.errs }

// Add records a message for field.
func (v *Validator) Add(field, msg string) {
	v.errs[field] = append(v.errs[field], msg)
}

// Invalid records the standard message for a value that names nothing.
func (v *Validator) Invalid(field string) {
	v.Add(field, fmt.Sprintf("The selected %s is invalid.", label(field)))
}

// Taken records the standard uniqueness message.
func (v *Validator) Taken(field string) {
	v.Add(field, fmt.Sprintf("The %s has already been taken.", label(field)))
}

// Present reports whether field carries a non-empty value.
func (v *Validator) Present(field string) bool {
	return !blank(v.in[field])
}

func blank(val any) bool {
	switch t := val.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

func label(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}

func num(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// present applies the required rule and reports whether other rules should run.
func (v *Validator) present(field string, rules []Rule) bool {
	if !blank(v.in[field]) {
		return true
	}
	for _, r := range rules {
		if r.kind == ruleRequired {
			v.Add(field, fmt.Sprintf("The %s field is required.", label(field)))
			break
		}
	}
	return false
}

// String returns the trimmed string value of field, or nil when absent or invalid.
func (v *Validator) String(field string, rules ...Rule) *string {
	if !v.present(field, rules) {
		return nil
	}
	s, ok := v.in[field].(string)
	if !ok {
		v.Add(field, fmt.Sprintf("The %s field must be a string.", label(field)))
		return nil
	}
	s = strings.TrimSpace(s)

	valid := true
	for _, r := range rules {
		if msg := checkString(field, s, r, v.in); msg != "" {
			v.Add(field, msg)
			valid = false
		}
	}
	if !valid {
		return nil
	}
	return &s
}

func checkString(field, s string, r Rule, in Input) string {
	l := label(field)
	switch r.kind {
	case ruleMin:
		if float64(utf8.RuneCountInString(s)) < r.n {
			return fmt.Sprintf("The %s field must be at least %s characters.", l, num(r.n))
		}
	case ruleMax:
		if float64(utf8.RuneCountInString(s)) > r.n {
			return fmt.Sprintf("The %s field must not be greater than %s characters.", l, num(r.n))
		}
	case ruleIn:
		for _, allowed := range r.set {
			if s == allowed {
				return ""
			}
		}
		return fmt.Sprintf("The selected %s is invalid.", l)
	case ruleEmail:
		addr, err := mail.ParseAddress(s)
		if err != nil || addr.Address != s || !strings.Contains(s, "@") {
			return fmt.Sprintf("The %s field must be a valid email address.", l)
		}
	case ruleURL:
		u, err := url.ParseRequestURI(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Sprintf("The %s field must be a valid URL.", l)
		}
	case ruleConfirmed:
		if c, _ := in[field+"_confirmation"].(string); c != s {
			return fmt.Sprintf("The %s field confirmation does not match.", l)
		}
	}
	return ""
}

func toFloat(val any) (float64, bool) {
	switch t := val.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func (v *Validator) checkNumber(field string, f float64, rules []Rule) bool {
	l := label(field)
	valid := true
	for _, r := range rules {
		switch r.kind {
		case ruleMin:
			if f < r.n {
				v.Add(field, fmt.Sprintf("The %s field must be at least %s.", l, num(r.n)))
				valid = false
			}
		case ruleMax:
			if f > r.n {
				v.Add(field, fmt.Sprintf("The %s field must not be greater than %s.", l, num(r.n)))
				valid = false
			}
		}
	}
	return valid
}

// Float returns the numeric value of field. Numeric strings are accepted.
func (v *Validator) Float(field string, rules ...Rule) *float64 {
	if !v.present(field, rules) {
		return nil
	}
	f, ok := toFloat(v.in[field])
	if !ok {
		v.Add(field, fmt.Sprintf("The %s field must be a number.", label(field)))
		return nil
	}
	if !v.checkNumber(field, f, rules) {
		return nil
	}
	return &f
}

// Int returns the integer value of field.
func (v *Validator) Int(field string, rules ...Rule) *int64 {
	if !v.present(field, rules) {
		return nil
	}
	f, ok := toFloat(v.in[field])
	if !ok || f != float64(int64(f)) {
		v.Add(field, fmt.Sprintf("The %s field must be an integer.", label(field)))
		return nil
	}
	if !v.checkNumber(field, f, rules) {
		return nil
	}
	n := int64(f)
	return &n
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseDate accepts the date and datetime shapes the frontend sends.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Date returns field parsed as a date or datetime.
func (v *Validator) Date(field string, rules ...Rule) *time.Time {
	if !v.present(field, rules) {
		return nil
	}
	s, _ := v.in[field].(string)
	t, ok := ParseDate(s)
	if !ok {
		v.Add(field, fmt.Sprintf("The %s field must be a valid date.", label(field)))
		return nil
	}
	return &t
}

// DateFormat requires field to match layout exactly. display is the format
// as shown to clients.
func (v *Validator) DateFormat(field, layout, display string, rules ...Rule) *time.Time {
	if !v.present(field, rules) {
		return nil
	}
	s, _ := v.in[field].(string)
	t, err := time.Parse(layout, strings.TrimSpace(s))
	if err != nil {
		v.Add(field, fmt.Sprintf("The %s field must match the format %s.", label(field), display))
		return nil
	}
	return &t
}
