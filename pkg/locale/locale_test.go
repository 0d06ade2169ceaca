package locale

import (
	"strings"
	"testing"
	"time"
)

func TestToJalaliKnownDates(t *testing.T) {
	cases := []struct {
		in   time.Time
		want JalaliDate
	}{
		{time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC), JalaliDate{1402, 10, 11}},
		{time.Date(2024, time.March, 19, 0, 0, 0, 0, time.UTC), JalaliDate{1402, 12, 29}},
		{time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC), JalaliDate{1403, 1, 1}},
		{time.Date(2024, time.September, 22, 0, 0, 0, 0, time.UTC), JalaliDate{1403, 7, 1}},
		{time.Date(2025, time.March, 20, 0, 0, 0, 0, time.UTC), JalaliDate{1403, 12, 30}},
		{time.Date(2025, time.March, 21, 0, 0, 0, 0, time.UTC), JalaliDate{1404, 1, 1}},
	}
	for _, tc := range cases {
		if got := ToJalali(tc.in); got != tc.want {
			t.Fatalf("ToJalali(%s) = %+v, want %+v", tc.in.Format(time.DateOnly), got, tc.want)
		}
	}
}

func TestFormatDateTimeUsesPersianDigitsAndMonth(t *testing.T) {
	ts := time.Date(2024, time.January, 2, 10, 5, 0, 0, time.UTC)
	got := FormatDateTime(ts, time.UTC)
	want := "۱۲ دی ۱۴۰۲، ساعت ۱۰:۰۵"
	if got != want {
		t.Fatalf("FormatDateTime = %q, want %q", got, want)
	}
}

func TestFormatDateTimeRendersInViewerLocation(t *testing.T) {
	tehran := time.FixedZone("IRST", 3*3600+1800)
	ts := time.Date(2024, time.March, 19, 22, 0, 0, 0, time.UTC)
	got := FormatDate(ts, tehran)
	if got != "۱ فروردین ۱۴۰۳" {
		t.Fatalf("expected date to roll over in +03:30, got %q", got)
	}
}

func TestFormatISOFallsBackOnGarbage(t *testing.T) {
	if got := FormatISO("yesterday", time.UTC); got != "yesterday" {
		t.Fatalf("expected input echoed, got %q", got)
	}
	if got := FormatISO("2024-01-01T10:00:00Z", time.UTC); !strings.HasPrefix(got, "۱۱ دی ۱۴۰۲") {
		t.Fatalf("unexpected rendering %q", got)
	}
}

func TestNormalizeReplacesArabicLetters(t *testing.T) {
	got := Normalize("  علي و كتاب ١٢  ")
	if got != "علی و کتاب ۱۲" {
		t.Fatalf("Normalize = %q", got)
	}
}

func TestDigits(t *testing.T) {
	if got := Digits("v1.20"); got != "v۱.۲۰" {
		t.Fatalf("Digits = %q", got)
	}
	if got := Number(2048); got != "۲۰۴۸" {
		t.Fatalf("Number = %q", got)
	}
}

func TestMessageFallbacks(t *testing.T) {
	if got := Message(CodeCommentUnauth); got != "برای نظر دادن باید وارد شوید" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := Message("auth/too-many-requests"); got != Message(CodeGeneric) {
		t.Fatalf("expected generic fallback, got %q", got)
	}
	if got := SignupMessage("auth/operation-not-allowed"); got != Message(CodeSignupFailed) {
		t.Fatalf("expected signup fallback, got %q", got)
	}
	if got := SignupMessage(CodePasswordMismatch); got != "رمز عبور و تکرار آن یکسان نیستند" {
		t.Fatalf("unexpected mismatch message %q", got)
	}
}

func TestCategoryAndRoleNames(t *testing.T) {
	if CategoryName("ai") != "هوش مصنوعی" {
		t.Fatalf("unexpected ai label")
	}
	if CategoryName("unknown") != "unknown" {
		t.Fatalf("expected passthrough for unknown category")
	}
	if RoleName("admin") != "مدیر" || RoleName("user") != "کاربر" {
		t.Fatalf("unexpected role labels")
	}
}
