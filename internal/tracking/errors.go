package tracking

const (
	ErrInvalidCoordinates = "invalid_coordinates"
	ErrStudentNotFound    = "student_not_found"
	ErrNotLinked          = "not_linked"
	ErrServerError        = "server_error"
)

type Error struct {
	Code string
}

func (e *Error) Error() string {
	return e.Code
}
