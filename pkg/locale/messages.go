// Package locale holds the Persian presentation layer shared by the API,
// the web frontend and the terminal client: error messages keyed by code,
// Solar Hijri date rendering and text normalization.
package locale

import "strings"

// Error codes exchanged between the API and its clients.
const (
	CodeMissingFields       = "validation/missing-fields"
	CodePasswordMismatch    = "validation/password-mismatch"
	CodePasswordTooShort    = "validation/password-too-short"
	CodeEmailInUse          = "auth/email-already-in-use"
	CodeInvalidEmail        = "auth/invalid-email"
	CodeWeakPassword        = "auth/weak-password"
	CodeInvalidCredential   = "auth/invalid-credential"
	CodeUnauthenticated     = "auth/unauthenticated"
	CodeSignupFailed        = "auth/signup-failed"
	CodeCommentUnauth       = "comment/unauthenticated"
	CodeCommentEmpty        = "comment/empty"
	CodeCommentForbidden    = "comment/forbidden"
	CodeCommentSubmitFailed = "comment/submit-failed"
	CodeCommentDeleteFailed = "comment/delete-failed"
	CodeArticleUnauth       = "article/unauthenticated"
	CodeArticleMissing      = "article/missing-fields"
	CodeImageTooLarge       = "article/image-too-large"
	CodeInvalidImage        = "article/invalid-image"
	CodeInvalidCategory     = "article/invalid-category"
	CodePublishFailed       = "article/publish-failed"
	CodeNotFound            = "not-found"
	CodeRateLimited         = "rate-limited"
	CodeBadRequest          = "bad-request"
	CodeGeneric             = "generic"
)

var messages = map[string]string{
	CodeMissingFields:       "لطفا تمام فیلدها را پر کنید",
	CodePasswordMismatch:    "رمز عبور و تکرار آن یکسان نیستند",
	CodePasswordTooShort:    "رمز عبور باید حداقل ۶ کاراکتر باشد",
	CodeEmailInUse:          "این ایمیل قبلا استفاده شده است",
	CodeInvalidEmail:        "ایمیل نامعتبر است",
	CodeWeakPassword:        "رمز عبور خیلی ضعیف است",
	CodeInvalidCredential:   "ایمیل یا رمز عبور اشتباه است",
	CodeUnauthenticated:     "لطفا وارد شوید",
	CodeSignupFailed:        "خطا در ثبت نام. لطفا دوباره تلاش کنید",
	CodeCommentUnauth:       "برای نظر دادن باید وارد شوید",
	CodeCommentEmpty:        "متن نظر نمی‌تواند خالی باشد",
	CodeCommentForbidden:    "فقط نویسنده نظر می‌تواند آن را حذف کند",
	CodeCommentSubmitFailed: "خطا در ارسال نظر",
	CodeCommentDeleteFailed: "خطا در حذف نظر",
	CodeArticleUnauth:       "برای نوشتن مقاله باید وارد شوید",
	CodeArticleMissing:      "لطفا عنوان و محتوای مقاله را وارد کنید",
	CodeImageTooLarge:       "حجم تصویر نباید بیشتر از ۵ مگابایت باشد",
	CodeInvalidImage:        "فایل انتخاب شده تصویر نیست",
	CodeInvalidCategory:     "دسته‌بندی نامعتبر است",
	CodePublishFailed:       "خطا در انتشار مقاله. لطفا دوباره تلاش کنید",
	CodeNotFound:            "موردی یافت نشد",
	CodeRateLimited:         "تعداد درخواست‌ها بیش از حد مجاز است",
	CodeBadRequest:          "درخواست نامعتبر است",
	CodeGeneric:             "خطایی رخ داد. لطفا دوباره تلاش کنید",
}

// Message returns the Persian message for code, or the generic message.
func Message(code string) string {
	return MessageOr(code, CodeGeneric)
}

// MessageOr returns the message for code, falling back to the message for fallback.
func MessageOr(code, fallback string) string {
	if msg, ok := messages[strings.TrimSpace(code)]; ok {
		return msg
	}
	if msg, ok := messages[fallback]; ok {
		return msg
	}
	return messages[CodeGeneric]
}

// SignupMessage maps identity provider codes to the signup form message.
// Codes outside the known set collapse to the signup failure message.
func SignupMessage(code string) string {
	switch code {
	case CodeMissingFields, CodePasswordMismatch, CodePasswordTooShort,
		CodeEmailInUse, CodeInvalidEmail, CodeWeakPassword:
		return messages[code]
	default:
		return messages[CodeSignupFailed]
	}
}

var categoryNames = map[string]string{
	"programming": "برنامه‌نویسی",
	"ai":          "هوش مصنوعی",
	"mobile":      "موبایل",
	"security":    "امنیت",
	"news":        "اخبار",
}

// CategoryName returns the Persian label for a category id.
func CategoryName(id string) string {
	if name, ok := categoryNames[id]; ok {
		return name
	}
	return id
}

// RoleName returns the Persian label for a user role.
func RoleName(role string) string {
	if role == "admin" {
		return "مدیر"
	}
	return "کاربر"
}
