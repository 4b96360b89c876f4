package service

import (
	"testing"
)

func TestMaskTopLevelKeys(t *testing.T) {
	fields := MaskFieldSet([]string{"Password", "api_secret"})
	in := map[string]any{"password": "p", "API_SECRET": "s", "user": "bob"}

	out := Mask(in, fields).(map[string]any)
	if out["password"] != RedactedValue || out["API_SECRET"] != RedactedValue {
		t.Fatalf("sensitive keys not masked: %v", out)
	}
	if out["user"] != "bob" {
		t.Fatalf("unexpected change to non-sensitive key: %v", out)
	}
	if in["password"] != "p" {
		t.Fatalf("input was mutated")
	}
}

func TestMaskIsIdempotent(t *testing.T) {
	fields := MaskFieldSet([]string{"token"})
	once := Mask(map[string]string{"token": "abc", "q": "1"}, fields)
	twice := Mask(once, fields).(map[string]string)
	if twice["token"] != RedactedValue || twice["q"] != "1" {
		t.Fatalf("mask(mask(x)) != mask(x): %v", twice)
	}
}

func TestMaskNonMappingPassThrough(t *testing.T) {
	fields := MaskFieldSet([]string{"password"})
	if got := Mask("password=abc", fields); got != "password=abc" {
		t.Fatalf("string payload changed: %v", got)
	}
	list := []any{map[string]any{"password": "x"}}
	if got := Mask(list, fields).([]any); got[0].(map[string]any)["password"] != "x" {
		t.Fatalf("list payload changed: %v", got)
	}
	if Mask(nil, fields) != nil {
		t.Fatalf("nil payload changed")
	}
}
