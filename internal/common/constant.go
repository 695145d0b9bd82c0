package common

// AuthTokenHeaderName is the HTTP request header used to carry the auth
// token on outbound requests to the remote master store.
const AuthTokenHeaderName = "Authorization"

// AuthTokenResponseHeaderName is the HTTP response header on which the remote
// master store returns a fresh auth token.
const AuthTokenResponseHeaderName = "fp-auth-token"

// ErrorMaskHeaderName is the HTTP response header carrying the user-faulted
// validation bitmask on 4xx responses.
const ErrorMaskHeaderName = "fp-error-mask"
