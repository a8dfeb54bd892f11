package upgrade

// RequiredSchemaVersion is the migrations/ version this binary expects.
// Bump it together with every new migration file.
const RequiredSchemaVersion uint = 1
