package r2client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/garyellow/whatsapp-commerce-bot/internal/config"
)

func TestNew_RequiresConfig(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), config.R2Config{AccountID: "acc", BucketName: "b"}); err == nil {
		t.Fatal("expected error for missing credentials")
	}
}

func TestNew_Configured(t *testing.T) {
	t.Parallel()

	c, err := New(context.Background(), config.R2Config{
		AccountID: "acc", AccessKeyID: "key", SecretAccessKey: "secret", BucketName: "bot-backups",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.bucket != "bot-backups" {
		t.Errorf("bucket = %q", c.bucket)
	}
}

func TestIsPreconditionFailed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"api error", &smithy.GenericAPIError{Code: "PreconditionFailed"}, true},
		{"wrapped api error", fmt.Errorf("put: %w", &smithy.GenericAPIError{Code: "PreconditionFailed"}), true},
		{"http 412", &smithyhttp.ResponseError{Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusPreconditionFailed}}, Err: errors.New("412")}, true},
		{"other api error", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isPreconditionFailed(tt.err); got != tt.want {
				t.Errorf("isPreconditionFailed() = %v, want %v", got, tt.want)
			}
		})
	}
}
