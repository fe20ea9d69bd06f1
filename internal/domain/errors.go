package domain

import "errors"

var (
	// ErrNoQuestions is returned when selection yields zero questions for a topic.
	ErrNoQuestions = errors.New("no questions available for topic")
	// ErrNotApproved is returned when a user tries to start a quiz before an admin approves them.
	ErrNotApproved = errors.New("user not approved")
	// ErrUserNotFound indicates the user has never registered.
	ErrUserNotFound = errors.New("user not found")
	// ErrMatchParse indicates a match answer could not be parsed into valid pairs.
	// It is recovered locally by re-prompting; it never reaches the transcript.
	ErrMatchParse = errors.New("match answer could not be parsed")
)
