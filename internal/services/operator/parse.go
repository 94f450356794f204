package operator

import (
	"math"
	"strconv"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gssiot/sitewatch/internal/model/entities"
)

// doorNums collects the sensor ids named by doorNum (number or string) and
// doorNums (list, or comma separated string). Values that are not integers
// are skipped. An empty result means every registered sensor.
func doorNums(req *structpb.Struct) []int {
	seen := make(map[int]bool)
	var out []int
	add := func(v *structpb.Value) {
		if n, ok := intValue(v); ok && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}

	f := req.GetFields()
	if v, ok := f["doorNum"]; ok {
		add(v)
	}
	switch v := f["doorNums"].GetKind().(type) {
	case *structpb.Value_ListValue:
		for _, item := range v.ListValue.GetValues() {
			add(item)
		}
	case *structpb.Value_StringValue:
		for _, s := range strings.Split(v.StringValue, ",") {
			add(structpb.NewStringValue(s))
		}
	}
	return out
}

func intValue(v *structpb.Value) (int, bool) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := k.NumberValue
		if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case *structpb.Value_StringValue:
		n, err := strconv.Atoi(strings.TrimSpace(k.StringValue))
		return n, err == nil
	}
	return 0, false
}

// sampleTarget reads sampleTarget leniently: a number, or a string with a
// leading integer ("7", "7 samples"). Anything else, or a non-positive
// value, gives the default target.
func sampleTarget(req *structpb.Struct) int {
	n := 0
	switch k := req.GetFields()["sampleTarget"].GetKind().(type) {
	case *structpb.Value_NumberValue:
		if !math.IsNaN(k.NumberValue) && !math.IsInf(k.NumberValue, 0) {
			n = int(k.NumberValue)
		}
	case *structpb.Value_StringValue:
		n = leadingInt(k.StringValue)
	}
	if n <= 0 {
		return entities.DefaultSampleTarget
	}
	return n
}

func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

func boolField(req *structpb.Struct, name string) (value, ok bool) {
	b, ok := req.GetFields()[name].GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return false, false
	}
	return b.BoolValue, true
}

func intList(ids []int) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
