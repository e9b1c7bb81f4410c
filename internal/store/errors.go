package store

import "errors"

var (
    ErrNotFound             = errors.New("not found")
    ErrArtistNotFound       = errors.New("artist not found")
    ErrDuplicateTransaction = errors.New("transaction already recorded")
    ErrInsufficientBalance  = errors.New("insufficient balance")
    ErrInvalidStatus        = errors.New("invalid status")
)
