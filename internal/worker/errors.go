package worker

import "errors"

// ErrAudioNotFound is returned when the audio object backing a note
// cannot be located.
var ErrAudioNotFound = errors.New("audio object not found")
