package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "auth":
		handleAuth(args)
	case "books":
		handleBooks(args)
	case "borrowers":
		handleBorrowers(args)
	case "borrowing":
		handleBorrowing(args)
	case "reports":
		handleReports(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleAuth(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: librarian auth <login|logout|who>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "login":
		loginUser(args[1:])
	case "logout":
		logoutUser()
	case "who":
		whoAmI()
	default:
		fmt.Printf("unknown auth command: %s\n", subCmd)
	}
}

func handleBooks(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: librarian books <list|search|get>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "list":
		listBooks(args[1:])
	case "search":
		searchBooks(args[1:])
	case "get":
		getBook(args[1:])
	default:
		fmt.Printf("unknown books command: %s\n", subCmd)
	}
}

func handleBorrowers(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: librarian borrowers <list|stats>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "list":
		listBorrowers(args[1:])
	case "stats":
		borrowerStats(args[1:])
	default:
		fmt.Printf("unknown borrowers command: %s\n", subCmd)
	}
}

func handleBorrowing(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: librarian borrowing <checkout|return|extend|overdue|sweep|stats>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "checkout":
		checkoutBook(args[1:])
	case "return":
		returnBook(args[1:])
	case "extend":
		extendLoan(args[1:])
	case "overdue":
		listOverdue(args[1:])
	case "sweep":
		runSweep()
	case "stats":
		borrowingStats()
	default:
		fmt.Printf("unknown borrowing command: %s\n", subCmd)
	}
}

func handleReports(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: librarian reports <overview|inventory>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "overview":
		reportOverview()
	case "inventory":
		reportInventory()
	default:
		fmt.Printf("unknown reports command: %s\n", subCmd)
	}
}

// Auth commands
func loginUser(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "password")

	fs.Parse(args)

	if *username == "" || *password == "" {
		fmt.Println("Error: username and password are required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]string{"username": *username, "password": *password}
	data, _ := json.Marshal(payload)
	resp, err := http.Post(getAPIURL()+"/auth/login", "application/json", bytes.NewReader(data))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	result := decodeEnvelope(resp)
	if resp.StatusCode == 200 {
		if token, ok := result["token"].(string); ok {
			saveToken(token)
			fmt.Printf("✓ Logged in as: %s\n", *username)
		}
	} else {
		fmt.Printf("✗ Login failed: %v\n", result["message"])
	}
}

func logoutUser() {
	token := loadToken()
	if token != "" {
		req, _ := http.NewRequest("POST", getAPIURL()+"/auth/logout", nil)
		addAuthHeader(req)
		if resp, err := http.DefaultClient.Do(req); err == nil {
			resp.Body.Close()
		}
	}
	os.Remove(tokenFile())
	fmt.Println("✓ Logged out")
}

func whoAmI() {
	token := loadToken()
	if token == "" {
		fmt.Println("Not logged in")
		return
	}

	req, _ := http.NewRequest("GET", getAPIURL()+"/auth/profile", nil)
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	result := decodeEnvelope(resp)
	if resp.StatusCode == 200 {
		fmt.Printf("✓ Logged in as: %v (%v)\n", result["username"], result["role"])
	} else {
		fmt.Println("Session expired, log in again")
	}
}

// Book commands
func listBooks(args []string) {
	_ = args
	items, total := fetchPaginated("/books")
	printBookTable(items, total)
}

func searchBooks(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: librarian books search <query>")
		return
	}
	items, total := fetchPaginated("/books/search?q=" + args[0])
	printBookTable(items, total)
}

func getBook(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: librarian books get <book-id>")
		return
	}

	req, _ := http.NewRequest("GET", getAPIURL()+"/books/"+args[0], nil)
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	result := decodeEnvelope(resp)
	if resp.StatusCode != 200 {
		fmt.Printf("✗ %v\n", result["message"])
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Title:\t%v\n", result["title"])
	fmt.Fprintf(w, "Author:\t%v\n", result["author"])
	fmt.Fprintf(w, "ISBN:\t%v\n", result["isbn"])
	fmt.Fprintf(w, "Available:\t%v / %v\n", result["available_quantity"], result["total_quantity"])
	w.Flush()
}

func printBookTable(items []map[string]interface{}, total float64) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tAUTHOR\tAVAILABLE\tTOTAL")
	for _, b := range items {
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n",
			b["id"], b["title"], b["author"], b["available_quantity"], b["total_quantity"])
	}
	w.Flush()
	fmt.Printf("%d book(s)\n", int(total))
}

// Borrower commands
func listBorrowers(args []string) {
	_ = args
	items, total := fetchPaginated("/borrowers")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL")
	for _, b := range items {
		fmt.Fprintf(w, "%v\t%v\t%v\n", b["id"], b["name"], b["email"])
	}
	w.Flush()
	fmt.Printf("%d borrower(s)\n", int(total))
}

func borrowerStats(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: librarian borrowers stats <borrower-id>")
		return
	}

	req, _ := http.NewRequest("GET", getAPIURL()+"/borrowers/"+args[0]+"/stats", nil)
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	result := decodeEnvelope(resp)
	if resp.StatusCode != 200 {
		fmt.Printf("✗ %v\n", result["message"])
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Total borrowings:\t%v\n", result["total_borrowings"])
	fmt.Fprintf(w, "Currently borrowed:\t%v\n", result["currently_borrowed"])
	fmt.Fprintf(w, "Returned:\t%v\n", result["returned"])
	fmt.Fprintf(w, "Overdue:\t%v\n", result["overdue"])
	w.Flush()
}

// Borrowing commands
func checkoutBook(args []string) {
	fs := flag.NewFlagSet("checkout", flag.ExitOnError)
	bookID := fs.Int64("book", 0, "book ID")
	borrowerID := fs.Int64("borrower", 0, "borrower ID")
	dueDate := fs.String("due", "", "due date in RFC 3339 (optional, defaults to 14 days)")

	fs.Parse(args)

	if *bookID == 0 || *borrowerID == 0 {
		fmt.Println("Error: book and borrower are required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]interface{}{
		"book_id":     *bookID,
		"borrower_id": *borrowerID,
	}
	if *dueDate != "" {
		payload["due_date"] = *dueDate
	}

	data, _ := json.Marshal(payload)
	req, _ := http.NewRequest("POST", getAPIURL()+"/borrowing/checkout", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	result := decodeEnvelope(resp)
	if resp.StatusCode == 201 {
		fmt.Printf("✓ Checked out, record %v, due %v\n", result["id"], result["due_date"])
	} else {
		fmt.Printf("✗ Checkout failed: %v\n", result["message"])
	}
}

func returnBook(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: librarian borrowing return <record-id>")
		return
	}

	req, _ := http.NewRequest("PUT", getAPIURL()+"/borrowing/return/"+args[0], nil)
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	result := decodeEnvelope(resp)
	if resp.StatusCode == 200 {
		fmt.Printf("✓ Returned record %v\n", args[0])
	} else {
		fmt.Printf("✗ Return failed: %v\n", result["message"])
	}
}

func extendLoan(args []string) {
	fs := flag.NewFlagSet("extend", flag.ExitOnError)
	recordID := fs.String("record", "", "borrowing record ID")
	due := fs.String("due", "", "new due date in RFC 3339")

	fs.Parse(args)

	if *recordID == "" || *due == "" {
		fmt.Println("Error: record and due are required")
		fs.PrintDefaults()
		return
	}

	data, _ := json.Marshal(map[string]string{"due_date": *due})
	req, _ := http.NewRequest("PUT", getAPIURL()+"/borrowing/"+*recordID+"/extend", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	result := decodeEnvelope(resp)
	if resp.StatusCode == 200 {
		fmt.Printf("✓ Due date extended to %v\n", result["due_date"])
	} else {
		fmt.Printf("✗ Extend failed: %v\n", result["message"])
	}
}

func listOverdue(args []string) {
	_ = args
	items, total := fetchPaginated("/borrowing/overdue")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBOOK\tBORROWER\tDUE\tSTATUS")
	for _, l := range items {
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n",
			l["id"], l["book_id"], l["borrower_id"], l["due_date"], l["status"])
	}
	w.Flush()
	fmt.Printf("%d overdue loan(s)\n", int(total))
}

func runSweep() {
	req, _ := http.NewRequest("POST", getAPIURL()+"/borrowing/process-overdue", nil)
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	result := decodeEnvelope(resp)
	if resp.StatusCode == 200 {
		fmt.Printf("✓ Sweep complete, %v record(s) marked overdue\n", result["marked"])
	} else {
		fmt.Printf("✗ Sweep failed: %v\n", result["message"])
	}
}

func borrowingStats() {
	req, _ := http.NewRequest("GET", getAPIURL()+"/borrowing/statistics", nil)
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	result := decodeEnvelope(resp)
	if resp.StatusCode != 200 {
		fmt.Printf("✗ %v\n", result["message"])
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Total loans:\t%v\n", result["total"])
	fmt.Fprintf(w, "Checked out:\t%v\n", result["checked_out"])
	fmt.Fprintf(w, "Returned:\t%v\n", result["returned"])
	fmt.Fprintf(w, "Overdue:\t%v\n", result["overdue"])
	fmt.Fprintf(w, "Avg loan days:\t%v\n", result["avg_loan_days"])
	w.Flush()
}

// Report commands
func reportOverview() {
	req, _ := http.NewRequest("GET", getAPIURL()+"/reports/overview", nil)
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	result := decodeEnvelope(resp)
	if resp.StatusCode != 200 {
		fmt.Printf("✗ %v\n", result["message"])
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Books:\t%v (%v copies, %v available)\n",
		result["total_books"], result["total_copies"], result["available_copies"])
	fmt.Fprintf(w, "Borrowers:\t%v\n", result["total_borrowers"])
	fmt.Fprintf(w, "Active loans:\t%v\n", result["active_loans"])
	fmt.Fprintf(w, "Overdue loans:\t%v\n", result["overdue_loans"])
	w.Flush()
}

func reportInventory() {
	req, _ := http.NewRequest("GET", getAPIURL()+"/reports/inventory", nil)
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool                     `json:"success"`
		Message string                   `json:"message"`
		Data    []map[string]interface{} `json:"data"`
	}
	json.NewDecoder(resp.Body).Decode(&envelope)
	if resp.StatusCode != 200 {
		fmt.Printf("✗ %v\n", envelope.Message)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TITLE\tISBN\tTOTAL\tAVAILABLE\tCHECKED OUT")
	for _, row := range envelope.Data {
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n",
			row["title"], row["isbn"], row["total_copies"], row["available"], row["checked_out"])
	}
	w.Flush()
}

// Helper functions
func getAPIURL() string {
	if url := os.Getenv("LIBRARIAN_API"); url != "" {
		return url
	}
	return "http://localhost:8080/api"
}

// decodeEnvelope unwraps the API response envelope and returns its data
// object. Error responses have no data, so the message is folded in for
// callers that only print it.
func decodeEnvelope(resp *http.Response) map[string]interface{} {
	var envelope struct {
		Success bool                   `json:"success"`
		Message string                 `json:"message"`
		Data    map[string]interface{} `json:"data"`
	}
	json.NewDecoder(resp.Body).Decode(&envelope)
	if envelope.Data == nil {
		envelope.Data = map[string]interface{}{}
	}
	if _, ok := envelope.Data["message"]; !ok {
		envelope.Data["message"] = envelope.Message
	}
	return envelope.Data
}

// fetchPaginated retrieves a list endpoint returning {items, total}
func fetchPaginated(path string) ([]map[string]interface{}, float64) {
	req, _ := http.NewRequest("GET", getAPIURL()+path, nil)
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return nil, 0
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Data    struct {
			Items []map[string]interface{} `json:"items"`
			Total float64                  `json:"total"`
		} `json:"data"`
	}
	json.NewDecoder(resp.Body).Decode(&envelope)
	if resp.StatusCode != 200 {
		fmt.Printf("✗ %v\n", envelope.Message)
		return nil, 0
	}
	return envelope.Data.Items, envelope.Data.Total
}

func tokenFile() string {
	home, _ := os.UserHomeDir()
	return home + "/.librarian/token"
}

func saveToken(token string) error {
	home, _ := os.UserHomeDir()
	os.MkdirAll(home+"/.librarian", 0700)
	return os.WriteFile(tokenFile(), []byte(token), 0600)
}

func loadToken() string {
	data, _ := os.ReadFile(tokenFile())
	return string(data)
}

func addAuthHeader(req *http.Request) {
	token := loadToken()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func printUsage() {
	fmt.Print(`Librarian CLI

Usage:
  librarian <command> [options]

Commands:
  auth       Authentication (login, logout, who)
  books      Catalog operations (list, search, get)
  borrowers  Borrower operations (list, stats)
  borrowing  Borrowing operations (checkout, return, extend, overdue, sweep, stats)
  reports    Reports (overview, inventory) - requires view_reports permission
  help       Show this help message

Environment Variables:
  LIBRARIAN_API    API endpoint (default: http://localhost:8080/api)

Examples:
  librarian auth login -username admin -password secret
  librarian books search tolstoy
  librarian borrowing checkout -book 12 -borrower 7
  librarian borrowing return 41
  librarian borrowing sweep
`)
}
