package mock

//go:generate go install github.com/golang/mock/mockgen@v1.6.0
//go:generate mockgen -package mock -destination ./useragent.mock.go github.com/zitadel/oidc-rp/pkg/client/rp UserAgent
//go:generate mockgen -package mock -destination ./selfissued.mock.go github.com/zitadel/oidc-rp/pkg/client/rp SelfIssuedProvider
