package httpapi

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
)

func TestRegisterValidatorsAddsRegTypeTag(t *testing.T) {
	if err := RegisterValidators(); err != nil {
		t.Fatalf("RegisterValidators: %v", err)
	}
	if err := RegisterValidators(); err != nil {
		t.Fatalf("second RegisterValidators: %v", err)
	}

	tests := []struct {
		val     string
		wantErr bool
	}{
		{"spot", false},
		{"pre-registered", false},
		{"pre", false},
		{"walkin", true},
	}
	for _, tt := range tests {
		t.Run(tt.val, func(t *testing.T) {
			err := binding.Validator.ValidateStruct(spotQuery{HTNO: "21A91A0502", EventID: "e1", Type: tt.val})
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateStruct(type=%q) err = %v, wantErr %v", tt.val, err, tt.wantErr)
			}
		})
	}
}
