package telemetry

import "go.opentelemetry.io/otel/attribute"

// Attribute helpers for the spans emitted by the upload, ingest and search
// paths. Keeping the keys in one place keeps trace queries consistent.

// FileMD5 returns an attribute for a document's content hash.
func FileMD5(md5 string) attribute.KeyValue {
	return attribute.String("scribe.file_md5", md5)
}

// FileName returns an attribute for a document's original file name.
func FileName(name string) attribute.KeyValue {
	return attribute.String("scribe.file_name", name)
}

// OrgTag returns an attribute for the organization tag a document belongs to.
func OrgTag(tag string) attribute.KeyValue {
	return attribute.String("scribe.org_tag", tag)
}

// PassageCount returns an attribute for the number of passages produced or
// indexed by a pipeline stage.
func PassageCount(n int) attribute.KeyValue {
	return attribute.Int("scribe.passage_count", n)
}

// QueryLength returns an attribute for the length of a search query. The
// query text itself is never recorded.
func QueryLength(n int) attribute.KeyValue {
	return attribute.Int("scribe.query_length", n)
}

// TopK returns an attribute for the requested result count of a search.
func TopK(k int) attribute.KeyValue {
	return attribute.Int("scribe.top_k", k)
}

// ResultCount returns an attribute for the number of results a search
// actually returned.
func ResultCount(n int) attribute.KeyValue {
	return attribute.Int("scribe.result_count", n)
}
