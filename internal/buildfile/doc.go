// Package buildfile loads HCL build declarations: the types subjects and
// products may take, the rules that compute products, the subjects of a
// build and the roots requested for them.
//
// A declaration set may be spread over any number of .hcl files; every file
// may hold any kind of block. A minimal file:
//
//	type "target" {
//	  schema = object({ name = string })
//	}
//
//	type "greeting" {
//	  schema = string
//	}
//
//	rule "greet" {
//	  product    = "greeting"
//	  expression = "hello ${subject.name}"
//	}
//
//	subject "lib" {
//	  type  = "target"
//	  value = { name = "lib" }
//	}
//
//	root {
//	  subject = "lib"
//	  product = "greeting"
//	}
//
// Rule expressions see the subject's data as `subject` and the values of
// the rule's inputs, in declaration order, as the tuple `inputs`. A rule may
// name a Go handler with `handler` instead of giving an expression.
package buildfile
