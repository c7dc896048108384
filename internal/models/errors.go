package models

import "errors"

// Виды доменных ошибок. По ним HTTP-слой выбирает статус ответа.
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("invalid input")
)

// DomainError — доменная ошибка с сообщением для клиента и видом.
// errors.Is срабатывает и на саму ошибку, и на её вид.
type DomainError struct {
	Kind error
	Msg  string
}

func (e *DomainError) Error() string { return e.Msg }

func (e *DomainError) Unwrap() error { return e.Kind }

func newErr(kind error, msg string) *DomainError {
	return &DomainError{Kind: kind, Msg: msg}
}

// Конкретные доменные ошибки.
var (
	ErrShopNotFound    = newErr(ErrNotFound, "shop not found")
	ErrDeviceNotFound  = newErr(ErrNotFound, "device not found")
	ErrSessionNotFound = newErr(ErrNotFound, "session not found")
	ErrUserNotFound    = newErr(ErrNotFound, "user not found")

	ErrDeviceBusy          = newErr(ErrConflict, "device has another session already running")
	ErrSessionAlreadyEnded = newErr(ErrConflict, "session has already ended")
	ErrUsernameTaken       = newErr(ErrConflict, "Username is already taken")
	ErrShopNameTaken       = newErr(ErrConflict, "shop name is already taken")
	ErrDeviceNameTaken     = newErr(ErrConflict, "device name is already taken")

	ErrCannotSuspendAdmin     = newErr(ErrForbidden, "Admin can't suspend admins")
	ErrCannotSuspendOtherShop = newErr(ErrForbidden, "Admin can't suspend users of different shops")
	ErrForbiddenRequest       = newErr(ErrForbidden, "Forbidden request")
	ErrUserDisabled           = newErr(ErrForbidden, "The user is not enabled")
	ErrOtherShop              = newErr(ErrForbidden, "resource belongs to a different shop")
	ErrAdminRequired          = newErr(ErrForbidden, "admin role required")

	ErrBadCredentials = newErr(ErrInvalidCredentials, "Invalid credentials")

	ErrNegativePrice = newErr(ErrInvalidInput, "hourly price must not be negative")
	ErrClockSkew     = newErr(ErrInvalidInput, "session end is before its start")
)

// Message возвращает клиентское сообщение доменной ошибки из цепочки err
// и false, если доменной ошибки в цепочке нет.
func Message(err error) (string, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Msg, true
	}
	return "", false
}
