package server

import (
	"context"
	"dronefeed/internal/global"
	"dronefeed/internal/logctx"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Rejects requests without a valid HS256 bearer token. Health stays open.
func requireBearer(ctx context.Context, secret []byte, next http.Handler) http.Handler {
	return http.HandlerFunc(func(serverResponder http.ResponseWriter, clientRequest *http.Request) {
		if clientRequest.URL.Path == global.HealthPath {
			next.ServeHTTP(serverResponder, clientRequest)
			return
		}

		err := verifyBearer(clientRequest, secret)
		if err != nil {
			logctx.LogEvent(ctx, global.VerbosityProgress, global.WarnLog,
				"Rejected request for %s from %s: %v\n", clientRequest.URL.Path, clientRequest.RemoteAddr, err)
			serverResponder.Header().Set("WWW-Authenticate", `Bearer realm="`+global.ProgBaseName+`"`)
			jResp(ctx, serverResponder, http.StatusUnauthorized, Jerror{Msg: "unauthorized"})
			return
		}
		next.ServeHTTP(serverResponder, clientRequest)
	})
}

func verifyBearer(clientRequest *http.Request, secret []byte) (err error) {
	authHeader := clientRequest.Header.Get("Authorization")
	if authHeader == "" {
		err = fmt.Errorf("missing Authorization header")
		return
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		err = fmt.Errorf("invalid Authorization header format")
		return
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		err = fmt.Errorf("failed to parse token: %w", err)
		return
	}
	if !token.Valid {
		err = fmt.Errorf("invalid token")
		return
	}
	return
}
