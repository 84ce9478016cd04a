package history

import "testing"

func TestQueryParams_Equal(t *testing.T) {
	tests := []struct {
		name string
		a, b QueryParams
		want bool
	}{
		{"both empty", QueryParams{}, QueryParams{}, true},
		{"same branch", QueryParams{Branch: Some("main")}, QueryParams{Branch: Some("main")}, true},
		{"different branch", QueryParams{Branch: Some("main")}, QueryParams{Branch: Some("dev")}, false},
		{"absent vs zero page", QueryParams{}, QueryParams{PageIndex: Some(0)}, false},
		{"absent vs empty search", QueryParams{}, QueryParams{SearchText: Some("")}, false},
		{
			"all fields",
			QueryParams{PageIndex: Some(2), PageSize: Some(50), Branch: Some("main"), SearchText: Some("fix"), FilePath: Some("a.go")},
			QueryParams{PageIndex: Some(2), PageSize: Some(50), Branch: Some("main"), SearchText: Some("fix"), FilePath: Some("a.go")},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
			if got := tt.b.Equal(tt.a); got != tt.want {
				t.Errorf("Equal() not symmetric: %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQueryParams_IsEmpty(t *testing.T) {
	if !(QueryParams{}).IsEmpty() {
		t.Error("zero QueryParams should be empty")
	}
	if (QueryParams{PageIndex: Some(0)}).IsEmpty() {
		t.Error("explicit page 0 is not empty")
	}
}

func TestQueryParams_HasViewOverride(t *testing.T) {
	if (QueryParams{Branch: Some("dev")}).HasViewOverride() {
		t.Error("branch alone is not a view override")
	}
	for _, p := range []QueryParams{
		{PageIndex: Some(1)},
		{PageSize: Some(10)},
		{SearchText: Some("x")},
		{FilePath: Some("README.md")},
	} {
		if !p.HasViewOverride() {
			t.Errorf("%+v should be a view override", p)
		}
	}
}

func TestOptional(t *testing.T) {
	var o Optional[int]
	if o.IsSet() {
		t.Error("zero Optional should be absent")
	}
	if got := o.OrElse(5); got != 5 {
		t.Errorf("OrElse() = %d, want 5", got)
	}
	if o.Ptr() != nil {
		t.Error("Ptr() of absent should be nil")
	}

	s := Some(3)
	if v, ok := s.Get(); !ok || v != 3 {
		t.Errorf("Get() = %d, %v", v, ok)
	}
	if p := s.Ptr(); p == nil || *p != 3 {
		t.Errorf("Ptr() = %v", p)
	}

	n := 9
	if got := FromPtr(&n); got != Some(9) {
		t.Errorf("FromPtr() = %+v", got)
	}
	if got := FromPtr[int](nil); got != None[int]() {
		t.Errorf("FromPtr(nil) = %+v", got)
	}
}

func TestQueryParams_String(t *testing.T) {
	if got := (QueryParams{}).String(); got != "{}" {
		t.Errorf("String() = %q, want {}", got)
	}
	p := QueryParams{Branch: Some("main"), PageIndex: Some(2), SearchText: Some("fix bug")}
	if got, want := p.String(), `branch=main page=2 search="fix bug"`; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
