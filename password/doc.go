// Package password provides the slow, salted credential hashing used for
// admin logins. bcrypt with a cost factor of at least 12 matches the hashes
// already stored in the dealership's admin table.
package password
