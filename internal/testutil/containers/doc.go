// Package containers provides testcontainer management for integration tests.
//
// The gateway's default storage is sqlite, which unit tests exercise
// directly; this package spins up a real MySQL 8.0 container so the mysql
// driver path (reserved-word quoting, upsert clauses, index length limits)
// is covered too.
//
// Containers are typically managed from TestMain in integration test
// packages:
//
//	var mysqlContainer *containers.MySQLContainer
//
//	func TestMain(m *testing.M) {
//	    var err error
//	    mysqlContainer, err = containers.NewMySQLContainer(context.Background(), nil)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    code := m.Run()
//	    _ = mysqlContainer.Terminate(context.Background())
//	    os.Exit(code)
//	}
//
// Integration tests using this package carry the "integration" build tag:
//
//	go test -tags=integration ./...
package containers
