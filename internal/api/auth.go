package api

import (
    "context"
    "net/http"
    "strings"

    "github.com/golang-jwt/jwt/v5"
)

const (
    roleArtist = "artist"
    roleAdmin  = "admin"
)

// Claims are issued by the identity provider. Subject is the artist or admin id.
type Claims struct {
    Role string `json:"role"`
    jwt.RegisteredClaims
}

type principal struct {
    ID   string
    Role string
}

type principalKey struct{}

func principalFrom(ctx context.Context) principal {
    p, _ := ctx.Value(principalKey{}).(principal)
    return p
}

func (s *Server) authMiddleware(role string) func(http.Handler) http.Handler {
    return func(next http.Handler) http.Handler {
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            token := extractBearerToken(r.Header.Get("Authorization"))
            claims, err := s.parseToken(token)
            if err != nil {
                s.logEvent("auth_failed", map[string]any{
                    "reason": "unauthorized",
                    "path":   r.URL.Path,
                })
                writeError(w, http.StatusUnauthorized, "unauthorized")
                return
            }
            if claims.Role != role {
                s.logEvent("auth_failed", map[string]any{
                    "reason":  "forbidden",
                    "path":    r.URL.Path,
                    "subject": claims.Subject,
                    "role":    claims.Role,
                })
                writeError(w, http.StatusForbidden, "forbidden")
                return
            }
            ctx := context.WithValue(r.Context(), principalKey{}, principal{ID: claims.Subject, Role: claims.Role})
            next.ServeHTTP(w, r.WithContext(ctx))
        })
    }
}

func (s *Server) parseToken(token string) (*Claims, error) {
    if token == "" || s.auth.JWTSecret == "" {
        return nil, jwt.ErrTokenMalformed
    }
    opts := []jwt.ParserOption{
        jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
        jwt.WithExpirationRequired(),
    }
    if s.auth.JWTIssuer != "" {
        opts = append(opts, jwt.WithIssuer(s.auth.JWTIssuer))
    }

    claims := new(Claims)
    parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
        return []byte(s.auth.JWTSecret), nil
    })
    if err != nil || !parsed.Valid {
        return nil, jwt.ErrTokenInvalidClaims
    }
    if strings.TrimSpace(claims.Subject) == "" {
        return nil, jwt.ErrTokenInvalidSubject
    }
    return claims, nil
}

func extractBearerToken(header string) string {
    if header == "" {
        return ""
    }
    parts := strings.SplitN(header, " ", 2)
    if len(parts) != 2 {
        return ""
    }
    if !strings.EqualFold(parts[0], "Bearer") {
        return ""
    }
    return strings.TrimSpace(parts[1])
}
