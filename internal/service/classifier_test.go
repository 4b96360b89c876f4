package service

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveMethod(t *testing.T) {
	c := NewClassifier("", nil)

	tests := []struct {
		path   string
		method string
		ok     bool
	}{
		{"/api/method/orders.create", "orders.create", true},
		{"/api/method/orders.create/", "orders.create", true},
		{"/api/method/", "", false},
		{"/api/resource/Order", "", false},
		{"/health", "", false},
	}
	for _, tt := range tests {
		method, ok := c.ResolveMethod(tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.method, method, tt.path)
	}
}

func TestIsReserved(t *testing.T) {
	c := NewClassifier("/api/method/", []string{"audit.", " ", "system."})
	assert.True(t, c.IsReserved("audit.archive_now"))
	assert.True(t, c.IsReserved("system.ping"))
	assert.False(t, c.IsReserved("orders.audit"))
}

func TestIsExternalCall(t *testing.T) {
	auth := http.Header{}
	auth.Set("Authorization", "Bearer abc")

	tests := []struct {
		name    string
		headers http.Header
		form    map[string]any
		sid     string
		want    bool
	}{
		{name: "authorization header", headers: auth, sid: "s1", want: true},
		{name: "key and secret", headers: http.Header{}, form: map[string]any{"api_key": "k", "api_secret": "s"}, sid: "s1", want: true},
		{name: "key and token", headers: http.Header{}, form: map[string]any{"api_key": []string{"k"}, "api_token": "t"}, sid: "s1", want: true},
		{name: "key only", headers: http.Header{}, form: map[string]any{"api_key": "k"}, sid: "s1", want: false},
		{name: "no session", headers: http.Header{}, want: true},
		{name: "browser session", headers: http.Header{}, form: map[string]any{}, sid: "s1", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsExternalCall(tt.headers, tt.form, tt.sid))
		})
	}
}
