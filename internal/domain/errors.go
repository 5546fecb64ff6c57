package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrDatasetEmpty   = errors.New("dataset contains no candles")
	ErrDatasetInvalid = errors.New("dataset failed validation")
	ErrEndOfDataset   = errors.New("end of dataset")
	ErrNoSession      = errors.New("no active session")
	ErrLockHeld       = errors.New("lock already held")
	ErrBadSaveFile    = errors.New("save file is corrupt or the password is wrong")
)
