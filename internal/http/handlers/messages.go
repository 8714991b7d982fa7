package handlers

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys double as the English text.
const (
	msgInvalidInput       = "The submitted input is invalid."
	msgImageTooLarge      = "The image is larger than the upload limit."
	msgUnsupportedImage   = "Only JPEG and PNG images are accepted."
	msgNotFound           = "The job was not found."
	msgPreconditionFailed = "This step cannot run yet for this job."
	msgStageFailed        = "The processing step failed. You can retry it."
	msgOperationPending   = "The processing step is still running. Try again shortly to continue."
	msgInternal           = "Something went wrong on our side."
	msgMethodNotAllowed   = "This request method is not supported."
)

var indonesian = map[string]string{
	msgInvalidInput:       "Input yang dikirim tidak valid.",
	msgImageTooLarge:      "Ukuran gambar melebihi batas unggahan.",
	msgUnsupportedImage:   "Hanya gambar JPEG dan PNG yang diterima.",
	msgNotFound:           "Pekerjaan tidak ditemukan.",
	msgPreconditionFailed: "Langkah ini belum dapat dijalankan untuk pekerjaan ini.",
	msgStageFailed:        "Langkah pemrosesan gagal. Anda dapat mencobanya lagi.",
	msgOperationPending:   "Langkah pemrosesan masih berjalan. Coba lagi sebentar lagi untuk melanjutkan.",
	msgInternal:           "Terjadi kesalahan di sisi kami.",
	msgMethodNotAllowed:   "Metode permintaan ini tidak didukung.",
}

func init() {
	for key, text := range indonesian {
		_ = message.SetString(language.Indonesian, key, text)
	}
}

// localize renders a message key for the negotiated locale. Unknown locales
// fall back to English.
func localize(locale, key string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return message.NewPrinter(tag).Sprintf(key)
}
