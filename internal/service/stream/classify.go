package stream

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"interview-transcription-service/internal/capture"
	"interview-transcription-service/internal/credentials"
	"interview-transcription-service/internal/models"
)

// Classify converts a transport error into a typed session error. An error
// that already carries a SessionError is returned unchanged.
func Classify(err error, source models.Source, stage models.Stage) *models.SessionError {
	if err == nil {
		return nil
	}
	var se *models.SessionError
	if errors.As(err, &se) {
		return se
	}
	return models.NewError(classifyKind(err), source, stage, err)
}

func classifyKind(err error) models.ErrorKind {
	switch {
	case errors.Is(err, credentials.ErrNoCredentials):
		return models.KindAuth
	case errors.Is(err, capture.ErrNoDevice), errors.Is(err, capture.ErrPermissionDenied):
		return models.KindDevice
	case errors.Is(err, context.DeadlineExceeded):
		return models.KindNetwork
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unauthenticated, codes.PermissionDenied:
			return models.KindAuth
		case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted:
			return models.KindNetwork
		default:
			return models.KindService
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return models.KindNetwork
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.ErrUnexpectedEOF) {
		return models.KindNetwork
	}
	return models.KindService
}
