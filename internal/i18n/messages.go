// Package i18n holds the bilingual user-facing strings produced by the form engine itself.
// Field labels, placeholders and validation messages come from the visa API and are not here.
package i18n

import (
	"fmt"

	"visakal-form/internal/domain"
)

// Key message identifier
type Key string

const (
	InvalidFileFormat  Key = "fileUpload.invalidFileFormat"
	InvalidImageFormat Key = "fileUpload.invalidImageFormat"
	FileSizeExceeds    Key = "fileUpload.fileSizeExceeds"
	UploadFailed       Key = "fileUpload.uploadFailed"
	DeleteFailed       Key = "fileUpload.deleteFailed"
	Uploading          Key = "fileUpload.uploading"
	ChooseFile         Key = "fileUpload.chooseFile"
	UploadDocument     Key = "fileUpload.uploadDocument"
	UploadPhoto        Key = "fileUpload.uploadPhoto"

	SelectOption     Key = "form.selectOption"
	SubmitError      Key = "form.submitError"
	UploadsPending   Key = "form.uploadsPending"
	SignInMessage    Key = "form.signInMessage"
	AutoCopy         Key = "form.autoCopy"
	CopyFromPrevious Key = "form.copyFromPrevious"
	Beneficiary      Key = "form.beneficiary"

	PaymentError         Key = "payment.error"
	PaymentNotConfigured Key = "payment.notConfigured"
	PaymentSuccess       Key = "payment.success"
)

var catalog = map[Key]domain.TranslatedText{
	InvalidFileFormat:  domain.Text("Invalid file format", "פורמט קובץ לא תקין"),
	InvalidImageFormat: domain.Text("Invalid image format", "פורמט תמונה לא תקין"),
	FileSizeExceeds:    domain.Text("File size exceeds ", "גודל הקובץ חורג מ-"),
	UploadFailed:       domain.Text("Upload failed", "ההעלאה נכשלה"),
	DeleteFailed:       domain.Text("Delete failed", "המחיקה נכשלה"),
	Uploading:          domain.Text("Uploading...", "מעלה..."),
	ChooseFile:         domain.Text("Choose file", "בחר קובץ"),
	UploadDocument:     domain.Text("Click to upload document", "לחץ להעלאת מסמך"),
	UploadPhoto:        domain.Text("Click to upload photo", "לחץ להעלאת תמונה"),

	SelectOption:     domain.Text("Select an option...", "בחר אפשרות..."),
	SubmitError:      domain.Text("Please correct the errors in the form", "נא לתקן את השגיאות בטופס"),
	UploadsPending:   domain.Text("Please wait for uploads to finish", "נא להמתין לסיום ההעלאות"),
	SignInMessage:    domain.Text("Please sign in to submit your application", "נא להתחבר כדי להגיש את הבקשה"),
	AutoCopy:         domain.Text("Copy to new beneficiaries", "העתק למוטבים חדשים"),
	CopyFromPrevious: domain.Text("Copy from previous", "העתק מהקודם"),
	Beneficiary:      domain.Text("Beneficiary", "מוטב"),

	PaymentError:         domain.Text("Payment failed, please try again", "התשלום נכשל, נסה שוב"),
	PaymentNotConfigured: domain.Text("Payment is not available for this request", "התשלום אינו זמין עבור בקשה זו"),
	PaymentSuccess:       domain.Text("Payment completed", "התשלום הושלם"),
}

// Text returns both translations of key. Unknown keys resolve to the key itself.
func Text(key Key) domain.TranslatedText {
	if t, ok := catalog[key]; ok {
		return t
	}
	return domain.Text(string(key), "")
}

// Get resolves key in lang.
func Get(key Key, lang domain.Language) string {
	return Text(key).Get(lang)
}

// SizeExceeded builds the oversized-file message, e.g. "File size exceeds 5MB".
func SizeExceeded(maxMB float64) domain.TranslatedText {
	t := Text(FileSizeExceeds)
	suffix := fmt.Sprintf("%gMB", maxMB)
	return domain.Text(t.En+suffix, t.He+suffix)
}
