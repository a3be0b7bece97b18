// Package environment names the deployment environment (development, staging,
// production) and carries it through context.Context.
//
//	env := environment.Parse(os.Getenv("APP_ENV"))
//	ctx = environment.WithContext(ctx, env)
//
// The logger factory uses it to choose output format and level; cmd/coord uses
// it to pick the development email sender outside production.
package environment
