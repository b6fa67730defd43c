package mapping

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// SampleType is the category inferred from a field's sample values.
type SampleType string

const (
	TypeEmail   SampleType = "email"
	TypeURL     SampleType = "url"
	TypePhone   SampleType = "phone"
	TypeBoolean SampleType = "boolean"
	TypeDate    SampleType = "date"
	TypeNumber  SampleType = "number"
	TypeText    SampleType = "text"
	TypeUnknown SampleType = "unknown"
)

var (
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	numberPattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	datePattern   = regexp.MustCompile(`^\d{4}[-/年]\d{1,2}[-/月]\d{1,2}`)
	phonePattern  = regexp.MustCompile(`^\+?\d{7,}$`)
)

var booleanLiterals = map[string]bool{
	"true": true, "false": true, "yes": true, "no": true, "0": true, "1": true,
}

// classifyOrder is the priority in which categories are tested.
var classifyOrder = []SampleType{TypeEmail, TypeURL, TypePhone, TypeBoolean, TypeDate, TypeNumber}

// ClassifySamples infers a SampleType from sample values. Null and empty
// values are ignored; with nothing left the type is unknown. The first
// category in priority order matched by at least 60% of the remaining
// values wins, otherwise the type is text.
func ClassifySamples(samples []any) SampleType {
	values := make([]string, 0, len(samples))
	for _, s := range samples {
		if s == nil {
			continue
		}
		if str, ok := s.(string); ok && str == "" {
			continue
		}
		values = append(values, strings.TrimSpace(stringify(s)))
	}
	if len(values) == 0 {
		return TypeUnknown
	}

	counts := make(map[SampleType]int, len(classifyOrder))
	for _, v := range values {
		if emailPattern.MatchString(v) {
			counts[TypeEmail]++
		}
		if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") || strings.HasPrefix(v, "www.") {
			counts[TypeURL]++
		}
		if numberPattern.MatchString(v) {
			counts[TypeNumber]++
		}
		if datePattern.MatchString(v) {
			counts[TypeDate]++
		}
		if phonePattern.MatchString(v) {
			counts[TypePhone]++
		}
		if booleanLiterals[strings.ToLower(v)] {
			counts[TypeBoolean]++
		}
	}

	total := len(values)
	for _, t := range classifyOrder {
		// count/total >= 0.6 without float rounding
		if counts[t]*5 >= total*3 {
			return t
		}
	}
	return TypeText
}

// stringify renders a sample value as text. Integral floats, which is how
// JSON numbers decode, print without a fractional part.
func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if !math.IsInf(x, 0) && !math.IsNaN(x) && x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatFloat(x, 'f', -1, 64)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return stringify(float64(x))
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}
