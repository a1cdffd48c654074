// Package crawler holds the shared vocabulary of the site crawler: targets, pages,
// artifacts, outcomes, the collaborator interfaces wired together by the engine, and
// the domain-scoped URL resolution used to filter discovered links.
package crawler
