package oidc

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/zitadel/schema"
	"golang.org/x/text/language"
)

type Audience []string

func (a *Audience) UnmarshalJSON(text []byte) error {
	var i any
	err := json.Unmarshal(text, &i)
	if err != nil {
		return err
	}
	switch aud := i.(type) {
	case []any:
		*a = make([]string, len(aud))
		for i, audience := range aud {
			s, ok := audience.(string)
			if !ok {
				return fmt.Errorf("oidc audience: unexpected type %T", audience)
			}
			(*a)[i] = s
		}
	case string:
		*a = []string{aud}
	}
	return nil
}

func (a Audience) Contains(aud string) bool {
	for _, v := range a {
		if v == aud {
			return true
		}
	}
	return false
}

type Display string

func (d *Display) UnmarshalText(text []byte) error {
	display := Display(text)
	switch display {
	case DisplayPage, DisplayPopup, DisplayTouch, DisplayWAP:
		*d = display
	}
	return nil
}

type Gender string

type Locale struct {
	tag language.Tag
}

// NewLocale returns a Locale from a language.Tag.
// It returns nil when the tag is undefined (root).
func NewLocale(tag language.Tag) *Locale {
	if tag.IsRoot() {
		return nil
	}
	return &Locale{tag: tag}
}

func (l *Locale) Tag() language.Tag {
	if l == nil {
		return language.Und
	}
	return l.tag
}

func (l *Locale) String() string {
	return l.Tag().String()
}

func (l *Locale) MarshalJSON() ([]byte, error) {
	tag := l.Tag()
	if tag.IsRoot() {
		return []byte("null"), nil
	}
	return json.Marshal(tag)
}

// UnmarshalJSON accepts a BCP 47 tag. Unparsable tags leave the Locale
// undefined instead of failing the whole claim set.
func (l *Locale) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("oidc locale: %w", err)
	}
	tag, err := language.Parse(s)
	if err == nil {
		l.tag = tag
	}
	return nil
}

type Locales []language.Tag

// ParseLocales parses a slice of strings into Locales.
// Undefined or unparsable tags are ignored.
func ParseLocales(locales []string) Locales {
	out := make(Locales, 0, len(locales))
	for _, locale := range locales {
		tag, err := language.Parse(locale)
		if err == nil && !tag.IsRoot() {
			out = append(out, tag)
		}
	}
	return out
}

func (l Locales) MarshalText() ([]byte, error) {
	tags := make([]string, len(l))
	for i, tag := range l {
		tags[i] = tag.String()
	}
	return []byte(strings.Join(tags, " ")), nil
}

func (l *Locales) UnmarshalText(text []byte) error {
	*l = ParseLocales(strings.Fields(string(text)))
	return nil
}

type ResponseType string

// Has reports whether the (space delimited) response type
// contains the component, e.g. "id_token" for "code id_token".
func (r ResponseType) Has(component string) bool {
	for _, c := range strings.Fields(string(r)) {
		if c == component {
			return true
		}
	}
	return false
}

// Flow classifies the response type.
// ok is false for unknown response types.
func (r ResponseType) Flow() (flow Flow, ok bool) {
	code := r.Has(ResponseTypeCodeComponent)
	idToken := r.Has(ResponseTypeIDTokenComponent)
	token := r.Has(ResponseTypeTokenComponent)
	for _, c := range strings.Fields(string(r)) {
		switch c {
		case ResponseTypeCodeComponent, ResponseTypeIDTokenComponent, ResponseTypeTokenComponent:
		default:
			return 0, false
		}
	}
	switch {
	case code && !idToken && !token:
		return FlowCode, true
	case !code && idToken:
		return FlowImplicit, true
	case code && (idToken || token):
		return FlowHybrid, true
	default:
		return 0, false
	}
}

// DefaultResponseMode returns the response mode the OP uses
// when none is requested: query for code, fragment otherwise.
func (r ResponseType) DefaultResponseMode() ResponseMode {
	if flow, _ := r.Flow(); flow == FlowCode {
		return ResponseModeQuery
	}
	return ResponseModeFragment
}

type ResponseMode string

type Flow int

const (
	FlowCode Flow = iota + 1
	FlowImplicit
	FlowHybrid
)

func (f Flow) String() string {
	switch f {
	case FlowCode:
		return "code"
	case FlowImplicit:
		return "implicit"
	case FlowHybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// SpaceDelimitedArray is a slice of strings transported
// as a single space delimited value (scope, prompt, acr_values).
type SpaceDelimitedArray []string

func (s SpaceDelimitedArray) String() string {
	return strings.Join(s, " ")
}

func (s SpaceDelimitedArray) Contains(value string) bool {
	for _, v := range s {
		if v == value {
			return true
		}
	}
	return false
}

func (s SpaceDelimitedArray) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SpaceDelimitedArray) UnmarshalText(text []byte) error {
	*s = strings.Fields(string(text))
	return nil
}

func (s SpaceDelimitedArray) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *SpaceDelimitedArray) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = strings.Fields(str)
	return nil
}

type Scopes SpaceDelimitedArray

func (s Scopes) Contains(scope string) bool {
	return SpaceDelimitedArray(s).Contains(scope)
}

func (s Scopes) MarshalText() ([]byte, error) {
	return SpaceDelimitedArray(s).MarshalText()
}

func (s *Scopes) UnmarshalText(text []byte) error {
	return (*SpaceDelimitedArray)(s).UnmarshalText(text)
}

func (s Scopes) MarshalJSON() ([]byte, error) {
	return SpaceDelimitedArray(s).MarshalJSON()
}

func (s *Scopes) UnmarshalJSON(data []byte) error {
	return (*SpaceDelimitedArray)(s).UnmarshalJSON(data)
}

// NewEncoder returns a schema Encoder with
// the space delimited types registered.
func NewEncoder() *schema.Encoder {
	e := schema.NewEncoder()
	e.RegisterEncoder(SpaceDelimitedArray{}, func(value reflect.Value) string {
		return value.Interface().(SpaceDelimitedArray).String()
	})
	e.RegisterEncoder(Scopes{}, func(value reflect.Value) string {
		return SpaceDelimitedArray(value.Interface().(Scopes)).String()
	})
	e.RegisterEncoder(Locales{}, func(value reflect.Value) string {
		text, _ := value.Interface().(Locales).MarshalText()
		return string(text)
	})
	return e
}

// NewDecoder returns a schema Decoder which ignores unknown keys.
func NewDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

// Time is a timestamp in seconds since the unix epoch.
type Time int64

func (ts Time) AsTime() time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(int64(ts), 0)
}

func FromTime(tt time.Time) Time {
	if tt.IsZero() {
		return 0
	}
	return Time(tt.Unix())
}

func NowTime() Time {
	return FromTime(time.Now())
}

// UnmarshalJSON accepts numeric timestamps and RFC 3339 strings.
func (ts *Time) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("oidc.Time: %w", err)
	}
	switch x := v.(type) {
	case float64:
		*ts = Time(x)
	case string:
		tt, err := time.Parse(time.RFC3339, x)
		if err != nil {
			return fmt.Errorf("oidc.Time: %w", err)
		}
		*ts = FromTime(tt)
	case nil:
		*ts = 0
	default:
		return fmt.Errorf("oidc.Time: unable to parse type %T with value %v", x, x)
	}
	return nil
}
