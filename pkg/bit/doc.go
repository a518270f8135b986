// Package bit provides a high-level library API for bit, a replicated
// bookkeeping store.
//
// A repository runs in one of three modes. A local repository records
// accounts, partners and notes with no network at all. A server repository
// is the single authority: it signs every accepted change and hands out the
// signed history. A remote repository works offline and synchronizes with a
// server through Push and Pull.
//
// # Concurrency Safety
//
//   - A Client owns its repository exclusively. Opening the same repository
//     from a second process fails with E_LOCK_CONFLICT until the first Client
//     is closed or its lease expires.
//
//   - All methods of one Client are safe for concurrent use; they serialize
//     on the repository.
//
// # Recommended Usage Pattern
//
//	client, err := bit.OpenOrInit(path, bit.InitOptions{
//	    Mode: model.RemoteMode("https://books.example.com"),
//	})
//	defer client.Close()
//
//	cash, _ := client.AddAccount("381", "Cash")
//	client.Commit("open cash account")
//	if _, err := client.Push(ctx); errclass.KindOf(err) == errclass.KindConflict {
//	    client.Rebase(string(cash))
//	}
package bit
