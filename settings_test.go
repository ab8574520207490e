// settings_test.go
package nuls

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestSettingsFromJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Settings
	}{
		{
			"Empty payload keeps defaults",
			"",
			DefaultSettings(),
		},
		{
			"Garbage yields defaults wholesale",
			`{"maxNumberOfProblems": "lots"`,
			DefaultSettings(),
		},
		{
			"Partial payload keeps unmentioned defaults",
			`{"maxNumberOfProblems": 10}`,
			Settings{
				Hints:               HintSettings{ShowInferredTypes: true},
				MaxNumberOfProblems: 10,
				MaxInvocationTime:   DurationMS(10 * time.Second),
				ExecutablePath:      "nu",
			},
		},
		{
			"Full payload",
			`{
				"hints": {"showInferredTypes": false},
				"includeDirs": ["/opt/nu"],
				"maxNumberOfProblems": 25,
				"maxNushellInvocationTime": 2500,
				"nushellExecutablePath": "/usr/local/bin/nu"
			}`,
			Settings{
				Hints:               HintSettings{ShowInferredTypes: false},
				IncludeDirs:         []string{"/opt/nu"},
				MaxNumberOfProblems: 25,
				MaxInvocationTime:   DurationMS(2500 * time.Millisecond),
				ExecutablePath:      "/usr/local/bin/nu",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := settingsFromJSON([]byte(tt.raw))
			if got.Hints != tt.want.Hints ||
				got.MaxNumberOfProblems != tt.want.MaxNumberOfProblems ||
				got.MaxInvocationTime != tt.want.MaxInvocationTime ||
				got.ExecutablePath != tt.want.ExecutablePath ||
				len(got.IncludeDirs) != len(tt.want.IncludeDirs) {
				t.Errorf("settingsFromJSON() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDurationMS(t *testing.T) {
	var d DurationMS
	if err := json.Unmarshal([]byte("1500"), &d); err != nil {
		t.Fatalf("UnmarshalJSON error = %v", err)
	}
	if d.Duration() != 1500*time.Millisecond {
		t.Errorf("Duration() = %v, want 1.5s", d.Duration())
	}
	out, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("MarshalJSON error = %v", err)
	}
	if string(out) != "1500" {
		t.Errorf("MarshalJSON = %s, want 1500", out)
	}
	if err := json.Unmarshal([]byte(`"fast"`), &d); err == nil {
		t.Error("expected error unmarshalling a string")
	}
}

// fakePuller scripts workspace/configuration answers per scope URI.
type fakePuller struct {
	answers map[DocumentURI]json.RawMessage
	err     error
	calls   int
}

func (p *fakePuller) Configuration(_ context.Context, items []ConfigurationItem) ([]json.RawMessage, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	var values []json.RawMessage
	for _, item := range items {
		values = append(values, p.answers[item.ScopeURI])
	}
	return values, nil
}

func newTestResolver(t *testing.T) *SettingsResolver {
	t.Helper()
	resolver, err := NewSettingsResolver(nil)
	if err != nil {
		t.Fatalf("NewSettingsResolver() error = %v", err)
	}
	t.Cleanup(resolver.Close)
	return resolver
}

func TestSettingsResolverGet(t *testing.T) {
	uri := DocumentURI("file:///tmp/settings.nu")

	t.Run("Without lookup capability returns global", func(t *testing.T) {
		resolver := newTestResolver(t)
		puller := &fakePuller{}
		got, err := resolver.Get(context.Background(), uri, false, puller)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !reflect.DeepEqual(got, resolver.Global()) {
			t.Errorf("Get() = %+v, want global", got)
		}
		if puller.calls != 0 {
			t.Errorf("puller called %d times, want 0", puller.calls)
		}
	})

	t.Run("With lookup pulls once then hits cache", func(t *testing.T) {
		resolver := newTestResolver(t)
		puller := &fakePuller{answers: map[DocumentURI]json.RawMessage{
			uri: json.RawMessage(`{"maxNumberOfProblems": 7}`),
		}}
		first, err := resolver.Get(context.Background(), uri, true, puller)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if first.MaxNumberOfProblems != 7 {
			t.Errorf("MaxNumberOfProblems = %d, want 7", first.MaxNumberOfProblems)
		}
		second, err := resolver.Get(context.Background(), uri, true, puller)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !reflect.DeepEqual(second, first) {
			t.Errorf("cached settings differ: %+v vs %+v", second, first)
		}
		if puller.calls != 1 {
			t.Errorf("puller called %d times, want 1", puller.calls)
		}
	})

	t.Run("Null answer falls back to defaults without caching", func(t *testing.T) {
		resolver := newTestResolver(t)
		puller := &fakePuller{answers: map[DocumentURI]json.RawMessage{
			uri: json.RawMessage(`null`),
		}}
		got, err := resolver.Get(context.Background(), uri, true, puller)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !reflect.DeepEqual(got, DefaultSettings()) {
			t.Errorf("Get() = %+v, want defaults", got)
		}
		resolver.Get(context.Background(), uri, true, puller)
		if puller.calls != 2 {
			t.Errorf("puller called %d times, want 2 (no caching of defaults)", puller.calls)
		}
	})

	t.Run("Pull failure surfaces ErrSettingsLookup", func(t *testing.T) {
		resolver := newTestResolver(t)
		puller := &fakePuller{err: errors.New("client went away")}
		_, err := resolver.Get(context.Background(), uri, true, puller)
		if !errors.Is(err, ErrSettingsLookup) {
			t.Errorf("Get() error = %v, want ErrSettingsLookup", err)
		}
	})
}

func TestSettingsResolverInvalidate(t *testing.T) {
	uri := DocumentURI("file:///tmp/invalidate.nu")

	t.Run("With lookup clears cache", func(t *testing.T) {
		resolver := newTestResolver(t)
		puller := &fakePuller{answers: map[DocumentURI]json.RawMessage{
			uri: json.RawMessage(`{"maxNumberOfProblems": 3}`),
		}}
		if _, err := resolver.Get(context.Background(), uri, true, puller); err != nil {
			t.Fatalf("Get() error = %v", err)
		}

		puller.answers[uri] = json.RawMessage(`{"maxNumberOfProblems": 9}`)
		resolver.Invalidate(nil, true)

		got, err := resolver.Get(context.Background(), uri, true, puller)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.MaxNumberOfProblems != 9 {
			t.Errorf("MaxNumberOfProblems = %d after invalidation, want 9", got.MaxNumberOfProblems)
		}
		if puller.calls != 2 {
			t.Errorf("puller called %d times, want 2", puller.calls)
		}
	})

	t.Run("Without lookup replaces global from payload", func(t *testing.T) {
		resolver := newTestResolver(t)
		payload := json.RawMessage(`{"nushellLanguageServer": {"nushellExecutablePath": "/opt/nu/bin/nu"}}`)
		resolver.Invalidate(payload, false)
		if got := resolver.Global().ExecutablePath; got != "/opt/nu/bin/nu" {
			t.Errorf("global executable = %q, want /opt/nu/bin/nu", got)
		}
	})

	t.Run("Without lookup, garbage payload resets to defaults", func(t *testing.T) {
		resolver := newTestResolver(t)
		resolver.Invalidate(json.RawMessage(`{"nushellLanguageServer": {"nushellExecutablePath": "/opt/nu"}}`), false)
		resolver.Invalidate(json.RawMessage(`not json`), false)
		if !reflect.DeepEqual(resolver.Global(), DefaultSettings()) {
			t.Errorf("global = %+v, want defaults", resolver.Global())
		}
	})
}
