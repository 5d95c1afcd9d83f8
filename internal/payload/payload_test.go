package payload

import (
	"errors"
	"testing"
)

func TestDeriveKey(t *testing.T) {
	tests := []struct {
		name    string
		req     string
		want    string
		wantErr error
	}{
		{"path only", `{"path":"/hello"}`, "/hello", nil},
		{"extra fields", `{"httpMethod":"GET","path":"/test","headers":{"a":"b"}}`, "/test", nil},
		{"nested path is ignored", `{"requestContext":{"path":"/prod/x"},"path":"/x"}`, "/x", nil},
		{"escaped", `{"path":"/café"}`, "/café", nil},
		{"root", `{"path":"/"}`, "/", nil},
		{"missing", `{"resource":"/hello"}`, "", ErrMissingKey},
		{"empty", `{"path":""}`, "", ErrInvalidKey},
		{"number", `{"path":42}`, "", ErrInvalidKey},
		{"null", `{"path":null}`, "", ErrInvalidKey},
		{"duplicate", `{"path":"/counted","path":"/served"}`, "", ErrDuplicateKey},
		{"duplicate escaped", `{"path":"/a","p\u0061th":"/b"}`, "", ErrDuplicateKey},
		{"array", `["/hello"]`, "", ErrNotObject},
		{"string", `"/hello"`, "", ErrNotObject},
		{"garbage", `{"path":`, "", ErrNotJSON},
		{"empty body", ``, "", ErrNotJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeriveKey(Request(tt.req))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("key = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	req := Request(`{"path":"/hello","requestContext":{"requestId":"a"}}`)
	first, err := DeriveKey(req)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		got, err := DeriveKey(req)
		if err != nil || got != first {
			t.Fatalf("iteration %d: got %q, %v", i, got, err)
		}
	}
}

func TestDeriveKeyDoesNotModifyRequest(t *testing.T) {
	orig := `{"path":"/hello","body":"{\"x\":1}"}`
	req := Request(orig)
	if _, err := DeriveKey(req); err != nil {
		t.Fatal(err)
	}
	if string(req) != orig {
		t.Errorf("request modified: %s", req)
	}
}
