// Command token issues a bearer token for local testing.
//
// Usage:
//
//	# Token for a free-tier user, valid for one hour
//	token --user alice
//
//	# Reviewer token valid for a working day
//	token --user bob --role Reviewer --ttl 8h
package main

func main() {
	Execute()
}
