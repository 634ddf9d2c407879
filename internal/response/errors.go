package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidAnswer  ErrCode = "INVALID_ANSWER"
	ErrInvalidSignal  ErrCode = "INVALID_SIGNAL"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrExamNotAvailable  ErrCode = "EXAM_NOT_AVAILABLE"
	ErrNoQuestions       ErrCode = "NO_QUESTIONS"
	ErrSessionNotStarted ErrCode = "SESSION_NOT_STARTED"
	ErrSessionClosed     ErrCode = "SESSION_CLOSED"
	ErrSessionInProgress ErrCode = "SESSION_IN_PROGRESS"
	ErrResultNotReleased ErrCode = "RESULT_NOT_RELEASED"
	ErrUnknownQuestion   ErrCode = "UNKNOWN_QUESTION"
	ErrNoAudio           ErrCode = "NO_AUDIO"

	// ─── Media ─────────────────────────────────────────────────────────
	ErrAudioHostNotAllowed ErrCode = "AUDIO_HOST_NOT_ALLOWED"
	ErrAudioUpstream       ErrCode = "AUDIO_UPSTREAM_FAILED"
	ErrFileTooLarge        ErrCode = "FILE_TOO_LARGE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email/NISN atau kata sandi salah."
	case ErrSessionActive:
		return "Anda sudah login di perangkat lain."
	case ErrSessionInvalidated:
		return "Sesi Anda telah berakhir. Silakan login kembali."
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrTokenExpired:
		return "Token autentikasi telah kedaluwarsa."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."
	case ErrAdminAccessOnly:
		return "Sumber daya ini terbatas untuk administrator."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."
	case ErrInvalidAnswer:
		return "Format jawaban tidak sesuai dengan jenis soal."
	case ErrInvalidSignal:
		return "Jenis pelanggaran tidak dikenal."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."

	// ─── Exam session ──────────────────────────────────────────────────
	case ErrExamNotAvailable:
		return "Ujian ini saat ini tidak tersedia."
	case ErrNoQuestions:
		return "Ujian ini tidak memiliki pertanyaan."
	case ErrSessionNotStarted:
		return "Anda belum memulai ujian ini."
	case ErrSessionClosed:
		return "Sesi ujian ini sudah berakhir."
	case ErrSessionInProgress:
		return "Ujian masih berlangsung."
	case ErrResultNotReleased:
		return "Hasil ujian belum dipublikasikan oleh pengawas."
	case ErrUnknownQuestion:
		return "Soal tidak ditemukan pada ujian ini."
	case ErrNoAudio:
		return "Soal ini tidak memiliki audio."

	// ─── Media ─────────────────────────────────────────────────────────
	case ErrAudioHostNotAllowed:
		return "Sumber audio tidak diizinkan."
	case ErrAudioUpstream:
		return "Gagal mengambil audio dari sumber."
	case ErrFileTooLarge:
		return "Ukuran file melebihi batas."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
