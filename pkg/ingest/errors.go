package ingest

import "errors"

var errEmptyFrame = errors.New("ingest: empty frame")
