package oidc

import (
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestAudience_UnmarshalText(t *testing.T) {
	type args struct {
		text []byte
	}
	type res struct {
		audience Audience
	}
	tests := []struct {
		name    string
		args    args
		res     res
		wantErr bool
	}{
		{
			"invalid value",
			args{
				[]byte(`{"aud": {"a": }}}`),
			},
			res{},
			true,
		},
		{
			"invalid element",
			args{
				[]byte(`{"aud": ["a", 1]}`),
			},
			res{
				[]string{"a", ""},
			},
			true,
		},
		{
			"single audience",
			args{
				[]byte(`{"aud": "single audience"}`),
			},
			res{
				[]string{"single audience"},
			},
			false,
		},
		{
			"multiple audience",
			args{
				[]byte(`{"aud": ["multiple", "audience"]}`),
			},
			res{
				[]string{"multiple", "audience"},
			},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := new(struct {
				Audience Audience `json:"aud"`
			})
			if err := json.Unmarshal(tt.args.text, &a); (err != nil) != tt.wantErr {
				t.Errorf("UnmarshalText() error = %v, wantErr %v", err, tt.wantErr)
			}
			assert.ElementsMatch(t, a.Audience, tt.res.audience)
		})
	}
}

func TestDisplay_UnmarshalText(t *testing.T) {
	tests := []struct {
		text string
		want Display
	}{
		{"page", DisplayPage},
		{"popup", DisplayPopup},
		{"touch", DisplayTouch},
		{"wap", DisplayWAP},
		{"other", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			var d Display
			require.NoError(t, d.UnmarshalText([]byte(tt.text)))
			assert.Equal(t, tt.want, d)
		})
	}
}

func TestLocale_MarshalJSON(t *testing.T) {
	tests := []struct {
		name   string
		locale *Locale
		want   string
	}{
		{
			name:   "nil",
			locale: nil,
			want:   `{"locale":null}`,
		},
		{
			name:   "und",
			locale: &Locale{},
			want:   `{"locale":null}`,
		},
		{
			name:   "en-US",
			locale: NewLocale(language.AmericanEnglish),
			want:   `{"locale":"en-US"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(struct {
				Locale *Locale `json:"locale"`
			}{tt.locale})
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestLocale_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    language.Tag
		wantErr bool
	}{
		{
			name:  "de-CH",
			input: `{"locale":"de-CH"}`,
			want:  language.MustParse("de-CH"),
		},
		{
			name:  "unparsable",
			input: `{"locale":"%%%"}`,
			want:  language.Und,
		},
		{
			name:    "wrong type",
			input:   `{"locale":1}`,
			want:    language.Und,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst struct {
				Locale *Locale `json:"locale"`
			}
			err := json.Unmarshal([]byte(tt.input), &dst)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, dst.Locale.Tag())
		})
	}
}

func TestParseLocales(t *testing.T) {
	got := ParseLocales([]string{"en", "und", "xx-%%", "de-CH"})
	assert.Equal(t, Locales{language.English, language.MustParse("de-CH")}, got)
}

func TestLocales_Text(t *testing.T) {
	var l Locales
	require.NoError(t, l.UnmarshalText([]byte("en  de-CH")))
	assert.Equal(t, Locales{language.English, language.MustParse("de-CH")}, l)

	text, err := l.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "en de-CH", string(text))
}

func TestResponseType_Flow(t *testing.T) {
	tests := []struct {
		responseType ResponseType
		wantFlow     Flow
		wantOK       bool
	}{
		{ResponseTypeCode, FlowCode, true},
		{ResponseTypeIDTokenOnly, FlowImplicit, true},
		{ResponseTypeIDToken, FlowImplicit, true},
		{"token id_token", FlowImplicit, true},
		{ResponseTypeCodeIDToken, FlowHybrid, true},
		{ResponseTypeCodeToken, FlowHybrid, true},
		{ResponseTypeCodeIDTokenToken, FlowHybrid, true},
		{"token", 0, false},
		{"", 0, false},
		{"code foo", 0, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.responseType), func(t *testing.T) {
			flow, ok := tt.responseType.Flow()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantFlow, flow)
		})
	}
}

func TestScopes_UnmarshalText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Scopes
	}{
		{"empty", "", Scopes{}},
		{"single", "openid", Scopes{"openid"}},
		{"multiple", "openid  email profile", Scopes{"openid", "email", "profile"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Scopes
			require.NoError(t, s.UnmarshalText([]byte(tt.text)))
			assert.Equal(t, tt.want, s)
		})
	}
}

func TestScopes_JSON(t *testing.T) {
	data, err := json.Marshal(Scopes{"openid", "email"})
	require.NoError(t, err)
	assert.Equal(t, `"openid email"`, string(data))

	var s Scopes
	require.NoError(t, json.Unmarshal(data, &s))
	assert.Equal(t, Scopes{"openid", "email"}, s)
	assert.True(t, s.Contains("email"))
	assert.False(t, s.Contains("phone"))
}

func TestNewEncoder(t *testing.T) {
	type request struct {
		Scopes    Scopes              `schema:"scope"`
		Prompt    SpaceDelimitedArray `schema:"prompt,omitempty"`
		UILocales Locales             `schema:"ui_locales,omitempty"`
	}
	a := request{
		Scopes:    Scopes{"foo", "bar"},
		Prompt:    SpaceDelimitedArray{"login", "consent"},
		UILocales: Locales{language.English, language.German},
	}

	values := make(url.Values)
	require.NoError(t, NewEncoder().Encode(a, values))
	assert.Equal(t, url.Values{
		"scope":      []string{"foo bar"},
		"prompt":     []string{"login consent"},
		"ui_locales": []string{"en de"},
	}, values)

	var b request
	require.NoError(t, NewDecoder().Decode(&b, values))
	assert.Equal(t, a, b)
}

func TestTime_AsTime(t *testing.T) {
	tests := []struct {
		name string
		ts   Time
		want time.Time
	}{
		{
			name: "unset",
			ts:   0,
			want: time.Time{},
		},
		{
			name: "set",
			ts:   1,
			want: time.Unix(1, 0),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.ts.AsTime()
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTime_FromTime(t *testing.T) {
	tests := []struct {
		name string
		tt   time.Time
		want Time
	}{
		{
			name: "zero",
			tt:   time.Time{},
			want: 0,
		},
		{
			name: "set",
			tt:   time.Unix(1, 0),
			want: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromTime(tt.tt)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTime_UnmarshalJSON(t *testing.T) {
	type dst struct {
		UpdatedAt Time `json:"updated_at"`
	}
	tests := []struct {
		name    string
		json    string
		want    dst
		wantErr bool
	}{
		{
			name: "RFC3339",
			json: `{"updated_at": "2021-05-11T21:13:25.566Z"}`,
			want: dst{UpdatedAt: 1620767605},
		},
		{
			name: "int",
			json: `{"updated_at":1620767605}`,
			want: dst{UpdatedAt: 1620767605},
		},
		{
			name:    "time parse error",
			json:    `{"updated_at":"foo"}`,
			wantErr: true,
		},
		{
			name: "null",
			json: `{"updated_at":null}`,
		},
		{
			name:    "invalid type",
			json:    `{"updated_at":["foo","bar"]}`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got dst
			err := json.Unmarshal([]byte(tt.json), &got)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
	t.Run("syntax error", func(t *testing.T) {
		var ts Time
		err := ts.UnmarshalJSON([]byte{'~'})
		assert.Error(t, err)
	})
}
