// Package validator collects field validation failures into one error.
//
// Rules are built by small constructors and evaluated together by Apply, so
// a caller sees every failing field at once rather than the first:
//
//	err := validator.Apply(
//		validator.Required("userId", p.UserID),
//		validator.OneOf("type", p.Type, notifications.Types),
//		validator.MaxLen("title", p.Title, 200),
//	)
//	if ve := validator.ExtractValidationErrors(err); ve.Has("title") {
//		...
//	}
//
// The error returned by Apply is a ValidationErrors value and survives
// wrapping with errors.Join or fmt.Errorf("%w").
package validator
