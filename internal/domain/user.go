package domain

type User struct {
	ID          int64  `db:"id"`
	FullName    string `db:"full_name"`
	Email       string `db:"email"`
	DateOfBirth string `db:"date_of_birth"`
	Hash        string `db:"password_hash"`
}
