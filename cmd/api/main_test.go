package main

import (
	"reflect"
	"testing"
)

func TestSplitOrigins(t *testing.T) {
	if got := splitOrigins(""); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
	if got := splitOrigins("  ,  "); len(got) != 0 {
		t.Fatalf("expected no origins, got %v", got)
	}
	got := splitOrigins("https://a.example, https://b.example ,")
	want := []string{"https://a.example", "https://b.example"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
