package message

import (
	"errors"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	manyRows := make([]Row, MaxListRows+1)
	for i := range manyRows {
		manyRows[i] = Row{ID: "id", Title: "row"}
	}

	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"text", NewText("hi"), false},
		{"valid list", sampleList(), false},
		{"nil list", Request{Kind: KindList}, true},
		{"no sections", NewList(List{Body: "b"}), true},
		{"too many rows", NewList(List{Body: "b", Sections: []Section{{Rows: manyRows}}}), true},
		{"row title too long", NewList(List{Body: "b", Sections: []Section{{Rows: []Row{
			{ID: "x", Title: strings.Repeat("a", MaxRowTitleLength+1)},
		}}}}), true},
		{"row missing id", NewList(List{Body: "b", Sections: []Section{{Rows: []Row{{Title: "x"}}}}}), true},
		{"valid buttons", NewButtons(Buttons{Body: "b", Buttons: []Button{{ID: "1", Label: "Yes"}}}), false},
		{"too many buttons", NewButtons(Buttons{Body: "b", Buttons: []Button{
			{ID: "1", Label: "a"}, {ID: "2", Label: "b"}, {ID: "3", Label: "c"}, {ID: "4", Label: "d"},
		}}), true},
		{"button without target", NewButtons(Buttons{Body: "b", Buttons: []Button{{Label: "a"}}}), true},
		{"label too long", NewButtons(Buttons{Body: "b", Buttons: []Button{
			{ID: "1", Label: strings.Repeat("a", MaxButtonLabelLength+1)},
		}}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidInteractive) {
				t.Errorf("error should wrap ErrInvalidInteractive: %v", err)
			}
		})
	}
}

func TestRequestHelpers(t *testing.T) {
	t.Parallel()
	req := NewText("hi").To("628@s.whatsapp.net")
	if req.Target != "628@s.whatsapp.net" || req.Kind != KindText {
		t.Errorf("To() = %+v", req)
	}
	if !(Request{}).IsZero() || req.IsZero() {
		t.Error("IsZero mismatch")
	}
	if KindList.String() != "list" || KindButtons.String() != "buttons" || KindText.String() != "text" {
		t.Error("Kind.String mismatch")
	}
}
