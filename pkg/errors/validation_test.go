package errors

import (
	"math"
	"testing"
)

func TestValidateCellIndex(t *testing.T) {
	tests := []struct {
		index, n int
		wantErr  bool
	}{
		{0, 1, false},
		{4, 5, false},
		{5, 5, true},
		{-1, 5, true},
		{0, 0, true},
	}
	for _, tt := range tests {
		err := ValidateCellIndex(tt.index, tt.n)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateCellIndex(%d, %d) error = %v, wantErr %v", tt.index, tt.n, err, tt.wantErr)
		}
		if err != nil && !Is(err, ErrCodeCellOutOfRange) {
			t.Errorf("ValidateCellIndex(%d, %d) code = %v", tt.index, tt.n, GetCode(err))
		}
	}
}

func TestValidateDirection(t *testing.T) {
	s := 1 / math.Sqrt(3)
	tests := []struct {
		name    string
		x, y, z float64
		wantErr bool
	}{
		{"unit x", 1, 0, 0, false},
		{"diagonal", s, s, s, false},
		{"zero", 0, 0, 0, true},
		{"not normalized", 1, 1, 0, true},
		{"nan", math.NaN(), 0, 0, true},
		{"inf", math.Inf(1), 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDirection(tt.x, tt.y, tt.z)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDirection() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAngleIndices(t *testing.T) {
	if err := ValidateAngleIndices(nil); !Is(err, ErrCodeEmptyAngleSet) {
		t.Errorf("empty angle set: got %v, want EMPTY_ANGLE_SET", err)
	}
	if err := ValidateAngleIndices([]int{0, 3, 2}); err != nil {
		t.Errorf("valid angles: unexpected error %v", err)
	}
	if err := ValidateAngleIndices([]int{1, 1}); err == nil {
		t.Error("duplicate angles should fail")
	}
	if err := ValidateAngleIndices([]int{-2}); err == nil {
		t.Error("negative angle should fail")
	}
}

func TestValidatePositive(t *testing.T) {
	if err := ValidatePositive("groups", 1); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidatePositive("groups", 0); !Is(err, ErrCodeInvalidConfig) {
		t.Errorf("zero: got %v, want INVALID_CONFIG", err)
	}
}
