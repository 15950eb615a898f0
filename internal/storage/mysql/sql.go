package mysql

// seq keeps insertion order stable across upserts, so lists come back in the
// order documents were first written.
const upsertDocumentSQL = `
INSERT INTO documents
  (collection, id, data)
VALUES
  (?, ?, ?)
ON DUPLICATE KEY UPDATE
  data       = VALUES(data),
  updated_at = CURRENT_TIMESTAMP
`

// Only lands while the field is missing or empty, so a concurrent full write
// is never reverted.
const setIfEmptySQL = `
UPDATE documents
SET data = JSON_SET(data, ?, ?)
WHERE collection = ? AND id = ?
  AND COALESCE(JSON_UNQUOTE(JSON_EXTRACT(data, ?)), '') = ''
`

const existsDocumentSQL = `
SELECT 1 FROM documents WHERE collection = ? AND id = ?
`

const deleteDocumentSQL = `
DELETE FROM documents
WHERE collection = ? AND id = ?
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

const getDocumentSQL = `
SELECT id, data, updated_at
FROM documents
WHERE collection = ? AND id = ?
`

const listDocumentsSQL = `
SELECT id, data, updated_at
FROM documents
WHERE collection = ?
ORDER BY seq
`

// Field path is bound as a parameter ('$.username'), value compared unquoted.
const findDocumentsSQL = `
SELECT id, data, updated_at
FROM documents
WHERE collection = ?
  AND JSON_UNQUOTE(JSON_EXTRACT(data, ?)) = ?
ORDER BY seq
`
