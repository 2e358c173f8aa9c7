// Package filter parses and evaluates LDAP-style filter expressions.
//
// Filters select capabilities by their attributes and select native-code
// clauses by framework properties:
//
//	(&(osgi.wiring.package=com.acme.api)(version>=1.2.0)(!(version>=2.0.0)))
//	(|(library.match=1)(library.match=2))
//	(os.name=Linux*)
//
// # Operators
//
//   - (&F1 F2 ...) and, (|F1 F2 ...) or, (!F) not
//   - (a=v) equality, with '*' wildcards for substring matching
//   - (a=*) presence
//   - (a~=v) approximate: case and whitespace insensitive equality
//   - (a>=v), (a<=v) ordering
//
// The value side is interpreted according to the attribute's Go type:
// version.Version compares as a version, integer types numerically,
// bool by its literal, and []string matches if any element matches.
// Backslash escapes '(', ')', '*' and '\' in values.
package filter
